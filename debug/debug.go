// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: debug.go — kernel-path error logging and fatal invariant sink
//
// Purpose:
//   - Logs infrequent error paths without introducing heap pressure.
//   - Used only in cold paths: lock consistency checks, registry exhaustion,
//     persistence failures.
//   - Fatal terminates the process on kernel-invariant violations; scheduler
//     state is assumed corrupt beyond that point and is never recovered.
//
// Notes:
//   - Avoids fmt.Sprintf to minimize footprint and latency.
//   - Writes directly to file descriptor 2, no interfaces, no allocation
//     beyond the message concatenation itself.
//
// ⚠️ Never invoke in hot loops — use only in failure diagnostics.
// ─────────────────────────────────────────────────────────────────────────────

package debug

import "os"

// DropError logs error messages with a custom alloc-free print strategy.
// It writes directly to stderr, bypassing any buffering layers.
//
//go:nosplit
//go:inline
//go:registerparams
func DropError(prefix string, err error) {
	if err != nil {
		msg := prefix + ": " + err.Error() + "\n"
		os.Stderr.WriteString(msg)
	} else {
		msg := prefix + "\n"
		os.Stderr.WriteString(msg)
	}
}

// DropMessage logs cold-path diagnostics: lock owner mismatches, registry
// state transitions, persistence milestones.
//
//go:nosplit
//go:inline
//go:registerparams
func DropMessage(prefix, message string) {
	msg := prefix + ": " + message + "\n"
	os.Stderr.WriteString(msg)
}

// Fatal reports an unrecoverable kernel-invariant violation and halts the
// process. Continuing past a consistency failure would corrupt scheduler
// state, so there is no recovery path and no return.
//
//go:nosplit
func Fatal(prefix, message string) {
	msg := "FATAL " + prefix + ": " + message + "\n"
	os.Stderr.WriteString(msg)
	os.Exit(70)
}
