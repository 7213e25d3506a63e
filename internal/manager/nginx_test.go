package manager

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderServerBlock(t *testing.T) {
	conf := renderServerBlock(testApp())

	assert.Contains(t, conf, "server_name inventory.example.com;")
	assert.Contains(t, conf, "proxy_pass http://127.0.0.1:3001;")
	assert.Contains(t, conf, "location /up {")
	assert.NotContains(t, conf, "ssl_certificate", "TLS is certbot's job")
}
