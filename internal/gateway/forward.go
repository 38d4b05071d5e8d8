package gateway

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Forward relays the request verbatim to the backend and streams the
// backend's status, headers, and body back unmodified. The upstream call
// uses the inbound request's context, so a client disconnect abandons it.
func (h *Handler) Forward(c *gin.Context) {
	target := *h.backend
	target.Path = singleJoiningSlash(h.backend.Path, c.Request.URL.Path)
	target.RawQuery = c.Request.URL.RawQuery

	// A zero-length body must stay nil or the client would send it chunked.
	var body io.Reader
	if c.Request.ContentLength != 0 {
		body = c.Request.Body
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target.String(), body)
	if err != nil {
		h.logger.Errorw("build backend request", "target", target.String(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
		return
	}

	// The inbound Host lives on Request.Host, not in the header map, so a
	// plain clone already drops it the way the backend expects.
	req.Header = c.Request.Header.Clone()
	if c.Request.ContentLength > 0 {
		req.ContentLength = c.Request.ContentLength
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Errorw("backend request failed", "target", target.String(), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"detail": "Backend service unavailable"})
		return
	}
	defer resp.Body.Close()

	h.logger.Infow("proxied request",
		"method", c.Request.Method,
		"target", target.String(),
		"status", resp.StatusCode,
	)

	header := c.Writer.Header()
	for key, values := range resp.Header {
		for _, value := range values {
			header.Add(key, value)
		}
	}
	c.Writer.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		h.logger.Warnw("relay backend response", "target", target.String(), "error", err)
	}
}

func singleJoiningSlash(a, b string) string {
	aSlash := strings.HasSuffix(a, "/")
	bSlash := strings.HasPrefix(b, "/")
	switch {
	case aSlash && bSlash:
		return a + b[1:]
	case !aSlash && !bSlash:
		return a + "/" + b
	}
	return a + b
}
