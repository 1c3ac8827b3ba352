package version

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built softwares version.
	Version = UWCoreSemVer
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

const (
	// UWCoreSemVer is the current version of the node software.
	// It's the Semantic Version of the software.
	UWCoreSemVer = "0.1.0"

	// TxProtocol versions the transaction wire format and the state
	// transition rules. Nodes applying different protocols diverge.
	TxProtocol uint64 = 1
)
