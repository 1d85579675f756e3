package archive

import (
	"context"
	"fmt"
	"os/exec"
)

// icommandPaths names the iRODS icommand executables a BatonClient shells
// out to for data transfer and collection creation. Metadata and listing
// operations go through the baton-do JSON wire instead (process.go).
type icommandPaths struct {
	imkdir string
	iget   string
	iput   string
}

func defaultICommandPaths() icommandPaths {
	return icommandPaths{imkdir: "imkdir", iget: "iget", iput: "iput"}
}

func runICommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s: %w: %s", ErrArchive, name, err, output)
	}

	return nil
}

func imkdir(ctx context.Context, executable, path string) error {
	return runICommand(ctx, executable, "-p", path)
}

func iget(ctx context.Context, executable, remotePath, localPath string, force bool) error {
	args := []string{"-K", "-r"}
	if force {
		args = append(args, "-f")
	}

	args = append(args, remotePath, localPath)

	return runICommand(ctx, executable, args...)
}

func iput(ctx context.Context, executable, localPath, remotePath string) error {
	return runICommand(ctx, executable, "-K", "-r", localPath, remotePath)
}
