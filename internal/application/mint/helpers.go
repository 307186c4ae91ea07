// internal/application/mint/helpers.go
package mint

import "strings"

// maskShort はアドレス・署名をログ用に短縮します（先頭4 + *** + 末尾4）。
func maskShort(s string) string {
	t := strings.TrimSpace(s)
	if t == "" {
		return ""
	}
	if len(t) <= 10 {
		return t
	}
	return t[:4] + "***" + t[len(t)-4:]
}
