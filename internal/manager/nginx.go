package manager

import (
	"fmt"

	"github.com/remoteds/hostingctl/internal/types"
)

// renderServerBlock produces the reverse-proxy configuration for one app.
// TLS directives are added by certbot when the certificate is issued, so the
// rendered block only handles plain HTTP proxying.
func renderServerBlock(app *types.App) string {
	return fmt.Sprintf(`server {
    listen 80;
    server_name %s;

    location / {
        proxy_pass http://127.0.0.1:%d;
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
    }

    location /up {
        proxy_pass http://127.0.0.1:%d/up;
        access_log off;
    }
}
`, app.Hostname(), app.Port, app.Port)
}
