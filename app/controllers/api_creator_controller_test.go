package controllers

import (
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func TestPaginationParams(t *testing.T) {
	app := fiber.New()

	tests := []struct {
		name       string
		query      string
		wantOffset int
		wantLimit  int
	}{
		{"defaults", "", 0, defaultPageSize},
		{"explicit page and limit", "page=3&limit=20", 40, 20},
		{"limit capped", "limit=9999", 0, defaultPageSize},
		{"garbage ignored", "page=abc&limit=-5", 0, defaultPageSize},
		{"page zero ignored", "page=0", 0, defaultPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := app.AcquireCtx(&fasthttp.RequestCtx{})
			defer app.ReleaseCtx(c)
			c.Request().SetRequestURI(fmt.Sprintf("/api/v1/sales?%s", tt.query))

			offset, limit := paginationParams(c)
			assert.Equal(t, tt.wantOffset, offset)
			assert.Equal(t, tt.wantLimit, limit)
		})
	}
}
