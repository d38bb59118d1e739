// Package assets serves the static files of each game from a per-game
// directory under a common root.
package assets

import (
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// Server maps GET /games/:resource/*filepath to <root>/<resource>/<filepath>.
type Server struct {
	root string
	log  *zap.Logger
}

func New(root string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{root: root, log: log}
}

// Mount registers the asset route on r.
func (s *Server) Mount(r gin.IRoutes) {
	r.GET("/games/:resource/*filepath", s.Handle)
	r.HEAD("/games/:resource/*filepath", s.Handle)
}

// Handle answers 404 when the game directory does not exist, and otherwise
// defers to http.FileServer semantics (index.html for directories).
func (s *Server) Handle(c *gin.Context) {
	resource := c.Param("resource")
	dir, ok := s.dir(resource)
	if !ok {
		c.String(http.StatusNotFound, "not found")
		return
	}
	c.FileFromFS(c.Param("filepath"), http.Dir(dir))
}

func (s *Server) dir(resource string) (string, bool) {
	if !namespacePattern.MatchString(resource) {
		return "", false
	}
	dir := filepath.Join(s.root, resource)
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		s.log.Debug("asset namespace missing", zap.String("game", resource))
		return "", false
	}
	return dir, true
}
