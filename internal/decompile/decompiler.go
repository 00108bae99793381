package decompile

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// Decompiler turns one binary into a directory tree of .java files.
// A nil error means the tool exited zero and outDir is populated.
// The concrete tool is injected; production uses CFR, tests use fakes.
type Decompiler func(ctx context.Context, binaryPath, outDir string) error

// CFR returns a Decompiler that shells out to the CFR jar:
// java -jar <cfrJar> <binary> --outputdir <dir>, bounded by timeout.
func CFR(cfrJar string, timeout time.Duration) Decompiler {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return func(ctx context.Context, binaryPath, outDir string) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "java", "-jar", cfrJar, binaryPath, "--outputdir", outDir)
		out, err := cmd.CombinedOutput()
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("decompiler timed out after %s", timeout)
		}
		if err != nil {
			return fmt.Errorf("decompiler exit: %w (output: %.400s)", err, out)
		}
		return nil
	}
}
