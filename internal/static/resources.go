package static

import (
	"embed"
	"net/http"

	"github.com/gin-gonic/gin"
)

const serviceWorkerFile = "assets/push-sw.js"

//go:embed assets
var assets embed.FS

// RegisterServiceWorker serves the push service worker at /push-sw.js. The
// script renders the payloads built by push.FormatPayload.
func RegisterServiceWorker(router gin.IRouter) {
	router.GET("/push-sw.js", serveServiceWorker)
	router.HEAD("/push-sw.js", serveServiceWorker)
}

func serveServiceWorker(c *gin.Context) {
	content, err := assets.ReadFile(serviceWorkerFile)
	if err != nil {
		c.String(http.StatusServiceUnavailable, "service worker not found")
		return
	}

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Service-Worker-Allowed", "/")
	if c.Request.Method == http.MethodHead {
		c.Header("Content-Type", "application/javascript; charset=utf-8")
		c.Status(http.StatusOK)
		return
	}
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", content)
}
