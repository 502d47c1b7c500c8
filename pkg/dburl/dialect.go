package dburl

import (
	stderrors "errors"

	"github.com/valyala/fasttemplate"

	"github.com/matchforge/configurator/pkg/errors"
)

// Supported database URL schemes.
const (
	SchemeMySQL      = "mysql"
	SchemePostgreSQL = "postgresql"
	SchemeDB2        = "db2"
	SchemeSQLite3    = "sqlite3"
	SchemeMSSQL      = "mssql"
)

// dialectTemplates maps each supported scheme to the engine's connection
// string shape for that dialect.
var dialectTemplates = map[string]*fasttemplate.Template{
	SchemeMySQL:      fasttemplate.New("{scheme}://{username}:{password}@{hostname}:{port}/?schema={schema}", "{", "}"),
	SchemePostgreSQL: fasttemplate.New("{scheme}://{username}:{password}@{hostname}:{port}:{schema}/", "{", "}"),
	SchemeDB2:        fasttemplate.New("{scheme}://{username}:{password}@{schema}", "{", "}"),
	SchemeSQLite3:    fasttemplate.New("{scheme}://{netloc}{path}", "{", "}"),
	SchemeMSSQL:      fasttemplate.New("{scheme}://{username}:{password}@{schema}", "{", "}"),
}

// DialectURL renders the dialect-specific connection string for the
// components' scheme. Unknown schemes yield ErrUnknownScheme.
func (c *Components) DialectURL() (string, error) {
	tmpl, ok := dialectTemplates[c.Scheme]
	if !ok {
		return "", errors.Wrap(ErrUnknownScheme, errors.ErrorTypeConfig,
			"no connection string template for database scheme").
			WithDetail("scheme", c.Scheme)
	}

	return tmpl.ExecuteString(map[string]interface{}{
		"scheme":   c.Scheme,
		"netloc":   c.Netloc,
		"path":     c.Path,
		"schema":   c.Schema,
		"username": c.Username,
		"password": c.Password,
		"hostname": c.Hostname,
		"port":     c.Port,
	}), nil
}

// ToDialectURL parses a canonical database URL and renders the
// dialect-specific connection string in one step.
func ToDialectURL(rawURL string) (string, error) {
	c, err := Parse(rawURL)
	if err != nil {
		return "", err
	}

	specific, err := c.DialectURL()
	if err != nil {
		var e *errors.Error
		if stderrors.As(err, &e) {
			e.WithDetail("database_url", rawURL)
		}
		return "", err
	}
	return specific, nil
}
