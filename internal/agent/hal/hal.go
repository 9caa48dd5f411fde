// Package hal provides the hardware-facing collaborators of the update
// pipeline: raw partition copying, the postinstall hook, and the boot-slot
// switch. Everything here is deliberately dumb; policy lives in the
// orchestrator.
package hal

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/updrive-io/updrive/internal/updater"
	"github.com/updrive-io/updrive/pkg/log"
)

const activeSlotFile = "active_slot"

// PartitionCopier streams one partition image onto another and can verify a
// finished copy by content hash.
type PartitionCopier struct{}

var _ updater.FilesystemCopier = (*PartitionCopier)(nil)

// NewPartitionCopier creates a copier.
func NewPartitionCopier() *PartitionCopier { return &PartitionCopier{} }

// Copy implements updater.FilesystemCopier.
func (c *PartitionCopier) Copy(ctx context.Context, source, target string, verifyOnly bool) error {
	if verifyOnly {
		return c.verify(ctx, source, target)
	}

	src, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("open source partition: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open target partition: %w", err)
	}
	defer dst.Close()

	log.Info("Copying partition", "source", source, "target", target)
	if err := copyChunks(ctx, dst, src); err != nil {
		return fmt.Errorf("copy %s to %s: %w", source, target, err)
	}
	if err := dst.Sync(); err != nil {
		return fmt.Errorf("sync target partition: %w", err)
	}
	return nil
}

func (c *PartitionCopier) verify(ctx context.Context, source, target string) error {
	srcSum, err := hashFile(ctx, source)
	if err != nil {
		return err
	}
	dstSum, err := hashFile(ctx, target)
	if err != nil {
		return err
	}
	if !bytes.Equal(srcSum, dstSum) {
		return fmt.Errorf("partition %s does not match %s", target, source)
	}
	return nil
}

// copyChunks copies in bounded chunks so cancellation lands between writes
// instead of after the whole transfer.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, 1<<20)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func hashFile(ctx context.Context, path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if err := copyChunks(ctx, h, f); err != nil {
		return nil, fmt.Errorf("hash %s: %w", path, err)
	}
	return h.Sum(nil), nil
}

// HookRunner executes the payload's postinstall hook against the target
// partition.
type HookRunner struct {
	hook string
}

var _ updater.PostinstallRunner = (*HookRunner)(nil)

// NewHookRunner creates a runner for the given hook executable. An empty
// path makes every run a logged no-op.
func NewHookRunner(hook string) *HookRunner {
	return &HookRunner{hook: hook}
}

// Run implements updater.PostinstallRunner. The finalize run passes
// --switch so the hook can point the bootloader at the new partition.
func (r *HookRunner) Run(ctx context.Context, targetPartition string, switchPartition bool) error {
	if r.hook == "" {
		log.Info("No postinstall hook configured, skipping",
			"target", targetPartition, "switch", switchPartition)
		return nil
	}

	args := []string{targetPartition}
	if switchPartition {
		args = append(args, "--switch")
	}

	log.Info("Running postinstall hook", "hook", r.hook, "args", fmt.Sprint(args))
	out, err := exec.CommandContext(ctx, r.hook, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("postinstall hook failed: %w: %s", err, bytes.TrimSpace(out))
	}
	return nil
}

// SlotMarker records which partition is the active boot slot. The record is
// what the bootloader shim reads at early boot.
type SlotMarker struct {
	stateDir string
}

var _ updater.BootFlagSetter = (*SlotMarker)(nil)

// NewSlotMarker creates a marker storing its record under stateDir.
func NewSlotMarker(stateDir string) *SlotMarker {
	return &SlotMarker{stateDir: stateDir}
}

// SetBootable implements updater.BootFlagSetter. The record is replaced
// atomically so a power cut never leaves a half-written slot name.
func (m *SlotMarker) SetBootable(ctx context.Context, targetPartition string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(m.stateDir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	final := filepath.Join(m.stateDir, activeSlotFile)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, []byte(targetPartition+"\n"), 0o644); err != nil {
		return fmt.Errorf("write slot record: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("commit slot record: %w", err)
	}

	log.Info("Marked partition bootable", "target", targetPartition)
	return nil
}

// ActiveSlot returns the recorded active partition, empty if none was ever
// set.
func (m *SlotMarker) ActiveSlot() string {
	data, err := os.ReadFile(filepath.Join(m.stateDir, activeSlotFile))
	if err != nil {
		return ""
	}
	return string(bytes.TrimSpace(data))
}
