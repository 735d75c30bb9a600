package middleware

import (
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func TestExtractAPIKeyFromHeader(t *testing.T) {
	app := fiber.New()

	tests := []struct {
		name   string
		header string
		value  string
		want   string
	}{
		{"x-api-key header", "X-API-Key", "secret-key", "secret-key"},
		{"bearer token", "Authorization", "Bearer secret-key", "secret-key"},
		{"bearer token lowercase", "Authorization", "bearer secret-key", "secret-key"},
		{"basic auth ignored", "Authorization", "Basic dXNlcg==", ""},
		{"missing", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := app.AcquireCtx(&fasthttp.RequestCtx{})
			defer app.ReleaseCtx(c)
			if tt.header != "" {
				c.Request().Header.Set(tt.header, tt.value)
			}

			assert.Equal(t, tt.want, extractAPIKeyFromHeader(c))
		})
	}
}
