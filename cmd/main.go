// cmd/main.go
package main

import (
	"go-auth-service/app"
)

// @title           Go Auth Service API
// @version         1.0
// @description     Issues, refreshes and revokes access/refresh token pairs.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	app.Run()
}
