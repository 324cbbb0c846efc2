package domain

import "strings"

// DEX program IDs watched by ingestion.
const (
	// JupiterV6 is the Jupiter aggregator v6 program.
	JupiterV6 = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"

	// JupiterV4 is the Jupiter aggregator v4 program.
	JupiterV4 = "JUP4Fb2cqiRUcaTHdrPC8h2gNsA2ETXiPDD33WcGuJB"

	// RaydiumAMMV4 is the Raydium AMM v4 program.
	RaydiumAMMV4 = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"

	// OrcaWhirlpool is the Orca swap program.
	OrcaWhirlpool = "9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP"

	// Meteora is the Meteora pools program.
	Meteora = "9H6tua7jkLhdm3w8BvgpTn5LZNU7g4ZynDmCiNN3q6Rp"

	// Phoenix is the Phoenix order book program.
	Phoenix = "PhoeNiXZ8ByJGLkxNfZRnkUfjvmuYqLRJi5i4Z2j3Yc"
)

// DEXUnknown labels trades whose logs mention none of the known programs.
const DEXUnknown = "Unknown"

// DEXProgram pairs a program ID with its venue label.
type DEXProgram struct {
	ID    string
	Label string
}

// DEXPrograms lists known venues in match priority order.
var DEXPrograms = []DEXProgram{
	{ID: JupiterV6, Label: "Jupiter v6"},
	{ID: JupiterV4, Label: "Jupiter v4"},
	{ID: RaydiumAMMV4, Label: "Raydium"},
	{ID: OrcaWhirlpool, Label: "Orca"},
	{ID: Meteora, Label: "Meteora"},
	{ID: Phoenix, Label: "Phoenix"},
}

// DefaultProgramIDs returns the program IDs of DEXPrograms in priority order.
func DefaultProgramIDs() []string {
	ids := make([]string, len(DEXPrograms))
	for i, p := range DEXPrograms {
		ids[i] = p.ID
	}
	return ids
}

// ResolveDEX returns the label of the first known program mentioned in logs.
func ResolveDEX(logs []string) string {
	if len(logs) == 0 {
		return DEXUnknown
	}
	joined := strings.Join(logs, " ")
	for _, p := range DEXPrograms {
		if strings.Contains(joined, p.ID) {
			return p.Label
		}
	}
	return DEXUnknown
}
