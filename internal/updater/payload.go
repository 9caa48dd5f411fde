package updater

// Object kinds carried by pipes. Kind equality between an upstream output
// and a downstream input is checked when the sequence is built.
const (
	KindNone        = ""
	KindResponse    = "OmahaResponse"
	KindInstallPlan = "InstallPlan"
)

// Response is the parsed update-check answer from the update server.
type Response struct {
	// UpdateExists is false when the server reported no applicable update.
	UpdateExists bool

	Version     string
	PayloadURL  string
	PayloadHash string
	PayloadSize uint64

	// IsDelta marks a delta payload relative to the running image.
	IsDelta bool

	NeedsReboot bool
	Prompt      bool
}

// Partition names one source/target pair updated during a cycle.
type Partition struct {
	// Source is the currently running partition used as the delta base and
	// for verification.
	Source string

	// Target is the inactive partition the new image is written to.
	Target string
}

// InstallPlan is the concrete work order derived from a Response. It feeds
// the filesystem copiers, the download action and the finalize actions.
type InstallPlan struct {
	IsFullUpdate bool

	DownloadURL  string
	DownloadHash string
	DownloadSize uint64

	// Partitions in apply order. The sequence builder emits one copier per
	// entry; the count is data-driven, not fixed.
	Partitions []Partition
}

// TargetPartition returns the partition the finalize steps operate on, the
// last one in apply order. Empty plan returns the zero value.
func (p *InstallPlan) TargetPartition() Partition {
	if len(p.Partitions) == 0 {
		return Partition{}
	}
	return p.Partitions[len(p.Partitions)-1]
}
