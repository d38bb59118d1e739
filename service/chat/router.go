package chat

import (
	"net/http"

	"PPBridge/middleware"
	"PPBridge/service/assets"
	"PPBridge/service/bridge"
	"PPBridge/service/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterDeps lists what NewRouter mounts. Metrics may be nil; the route then
// answers 503.
type RouterDeps struct {
	WS      *Server
	WsPath  string
	Bridge  *bridge.Bridge
	Assets  *assets.Server
	Metrics metrics.Store
	Log     *zap.Logger
}

// NewRouter builds the gin engine for every HTTP surface of the bridge.
func NewRouter(d RouterDeps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	path := d.WsPath
	if path == "" {
		path = "/ws"
	}

	r := gin.New()
	mids := middleware.NewManager(middleware.RequestID())
	mids.Add(middleware.Logger(log.Named("http")))
	mids.Add(middleware.Recovery(log))
	mids.Apply(r)

	r.GET(path, d.WS.HandleWS)
	r.GET("/sessions/:userId", SessionHandler(d.Bridge, log))
	r.POST("/metrics/:resource", metrics.Handler(d.Metrics, log.Named("metrics")))
	if d.Assets != nil {
		d.Assets.Mount(r)
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": d.Bridge.Registry().Len(),
		})
	})
	return r
}
