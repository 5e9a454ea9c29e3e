package middleware

import (
	"net/http"
	"strings"
)

// methodOverrideParam はHTMLフォームから実際のHTTPメソッドを指定するクエリパラメータ名。
const methodOverrideParam = "_method"

// overridableMethods はPOSTから上書きできるメソッド。
var overridableMethods = map[string]bool{
	http.MethodDelete: true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
}

// NewMethodOverrideMiddleware はPOSTリクエストの ?_method=DELETE 等をリクエストメソッドに反映する。
// HTMLフォームはGETとPOSTしか送信できないため、ログアウトフォームで使用する。
// ルーティングより前に配置する必要がある。
func NewMethodOverrideMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				override := strings.ToUpper(r.URL.Query().Get(methodOverrideParam))
				if overridableMethods[override] {
					r.Method = override
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
