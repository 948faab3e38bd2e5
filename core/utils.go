package core

import (
	"reflect"

	"github.com/encodeous/bfroute/state"
)

func Get[T state.NyModule](s *state.State) T {
	t := reflect.TypeFor[T]()
	return s.Modules[t.String()].(T)
}

func moduleName(m state.NyModule) string {
	return reflect.TypeOf(m).String()
}
