// Package diag provides lenient logging wrappers around fallible
// operations, used for non-fatal conditions where a failure should be
// visible but processing continues or the error propagates unchanged.
//
//	diag.Hope(f.Close())
//	return diag.ComplainMsg(err, "failed to load configuration")
package diag

import (
	"go.uber.org/zap"

	"github.com/parqsnap/parqsnap/pkg/logger"
)

// Hope logs err at error level and discards it. Use for operations whose
// failure should be visible but never propagated.
func Hope(err error) {
	if err != nil {
		logger.Error("failure", zap.Error(err))
	}
}

// ComplainMsg logs err with a message and passes it through unchanged.
func ComplainMsg(err error, msg string) error {
	if err != nil {
		logger.Error(msg, zap.Error(err))
	}
	return err
}
