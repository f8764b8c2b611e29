//go:build !noinstrumentation

package instrumentation

import "github.com/run-bigpig/opsagent/pkg/optional"

func init() {
	optional.Register(ID, func() (optional.Module, error) {
		return &Package{Version: Version, Init: Init}, nil
	})
}
