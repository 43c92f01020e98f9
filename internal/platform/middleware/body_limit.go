package middleware

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// BodyLimit caps the request body at maxBytes. HL7 payloads are small
// line-oriented text, so a declared Content-Length past the cap is rejected
// with 413 before the handler runs; bodies of unknown length are cut off at
// the cap mid-read.
func BodyLimit(maxBytes int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			if req.ContentLength > maxBytes {
				return c.JSON(http.StatusRequestEntityTooLarge, map[string]interface{}{
					"error": fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", maxBytes),
				})
			}

			req.Body = &cappedBody{src: req.Body, left: maxBytes}
			return next(c)
		}
	}
}

// cappedBody hands out at most left bytes and fails the read that would go
// past them. Reads request one byte beyond the remaining budget so an
// overrun is detected on the read that crosses it, not one read later.
type cappedBody struct {
	src  io.ReadCloser
	left int64
	over bool
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.over {
		return 0, errBodyTooLarge()
	}
	if max := b.left + 1; int64(len(p)) > max {
		p = p[:max]
	}
	n, err := b.src.Read(p)
	b.left -= int64(n)
	if b.left < 0 {
		b.over = true
		return 0, errBodyTooLarge()
	}
	return n, err
}

func (b *cappedBody) Close() error { return b.src.Close() }

func errBodyTooLarge() error {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
}
