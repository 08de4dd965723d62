// Package autoload initializes the global logger from the LOG_* env vars
// as a side effect of being imported.
package autoload

import (
	configx "github.com/hubenschmidt/pina-colada-sub000/pkg/config"
	logx "github.com/hubenschmidt/pina-colada-sub000/pkg/logger"
)

func init() {
	conf, err := configx.New[logx.Config]("LOG")
	if err != nil {
		logx.Init()
		return
	}
	logx.Init(*conf)
}
