package job

import (
	"fmt"
	"strings"
)

// Stats counts what a job did, after librsync's rs_stats.
type Stats struct {
	LitCmds     int64
	LitBytes    int64
	LitCmdBytes int64

	CopyCmds     int64
	CopyBytes    int64
	CopyCmdBytes int64

	SigCmds  int64
	SigBytes int64

	FalseMatches int64
	SigBlocks    int64
	BlockLen     int

	InBytes  int64
	OutBytes int64

	// base fetches made by a patch job
	Fetches int64
}

func (s Stats) String() string {
	var parts []string
	if s.LitCmds > 0 {
		parts = append(parts, fmt.Sprintf("literal[%d cmds, %d bytes, %d cmdbytes]", s.LitCmds, s.LitBytes, s.LitCmdBytes))
	}
	if s.SigCmds > 0 {
		parts = append(parts, fmt.Sprintf("signature-out[%d cmds, %d bytes]", s.SigCmds, s.SigBytes))
	}
	if s.CopyCmds > 0 || s.FalseMatches > 0 {
		parts = append(parts, fmt.Sprintf("copy[%d cmds, %d bytes, %d cmdbytes, %d false]", s.CopyCmds, s.CopyBytes, s.CopyCmdBytes, s.FalseMatches))
	}
	if s.SigBlocks > 0 {
		parts = append(parts, fmt.Sprintf("signature[%d blocks, %d bytes per block]", s.SigBlocks, s.BlockLen))
	}
	if s.Fetches > 0 {
		parts = append(parts, fmt.Sprintf("fetches[%d]", s.Fetches))
	}
	parts = append(parts, fmt.Sprintf("%d bytes in, %d bytes out", s.InBytes, s.OutBytes))
	return strings.Join(parts, " ")
}
