package solana

import "encoding/json"

// ParsedTransaction is a finalized transaction returned by getTransaction
// with jsonParsed encoding. Only the fields the settlement validator needs
// are decoded.
type ParsedTransaction struct {
	Slot      int64
	Signature string
	BlockTime *int64
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta holds post-execution metadata.
type TransactionMeta struct {
	Err               interface{}        `json:"err"`
	PostTokenBalances []TokenBalance     `json:"postTokenBalances"`
	InnerInstructions []InnerInstruction `json:"innerInstructions"`
}

// Failed reports whether the transaction errored on chain.
func (m *TransactionMeta) Failed() bool {
	return m != nil && m.Err != nil
}

// TokenBalance is a token account balance snapshot after the transaction.
type TokenBalance struct {
	AccountIndex int           `json:"accountIndex"`
	Mint         string        `json:"mint"`
	Owner        string        `json:"owner"`
	UIAmount     UITokenAmount `json:"uiTokenAmount"`
}

// UITokenAmount is the amount of an SPL token balance or transfer.
type UITokenAmount struct {
	Amount   string `json:"amount"`
	Decimals uint8  `json:"decimals"`
}

// TransactionMessage holds the parsed instruction list.
type TransactionMessage struct {
	AccountKeys  []AccountKey  `json:"accountKeys"`
	Instructions []Instruction `json:"instructions"`
}

// AccountKey is an account referenced by the transaction.
type AccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

// InnerInstruction wraps instructions emitted by CPI calls.
type InnerInstruction struct {
	Index        int           `json:"index"`
	Instructions []Instruction `json:"instructions"`
}

// Instruction is a single parsed instruction. Parsed is only populated for
// programs the RPC node knows how to decode, such as spl-token.
type Instruction struct {
	Program   string          `json:"program"`
	ProgramID string          `json:"programId"`
	Parsed    json.RawMessage `json:"parsed"`
}

// parsedInstruction is the decoded form of Instruction.Parsed.
type parsedInstruction struct {
	Type string          `json:"type"`
	Info json.RawMessage `json:"info"`
}

// transferInfo covers both transfer and transferChecked payloads.
type transferInfo struct {
	Authority   string         `json:"authority"`
	Source      string         `json:"source"`
	Destination string         `json:"destination"`
	Mint        string         `json:"mint"`
	Amount      string         `json:"amount"`
	TokenAmount *UITokenAmount `json:"tokenAmount"`
}

// TokenTransfer is a single SPL token movement extracted from a transaction.
type TokenTransfer struct {
	// Authority is the wallet that signed the transfer.
	Authority string `json:"authority"`

	// Source is the sending token account.
	Source string `json:"source"`

	// Destination is the receiving token account.
	Destination string `json:"destination"`

	// Mint is the token mint if the instruction carried one.
	// Plain transfer instructions leave it empty.
	Mint string `json:"mint,omitempty"`

	// Amount is the raw amount in the token's smallest unit.
	Amount string `json:"amount"`
}

// TokenTransfers extracts every spl-token transfer and transferChecked
// instruction from the transaction, including those nested in inner
// instructions. A transaction can legitimately carry several; callers
// decide which one, if any, matches what they are looking for.
func (tx *ParsedTransaction) TokenTransfers() []TokenTransfer {
	var transfers []TokenTransfer

	collect := func(instrs []Instruction) {
		for _, in := range instrs {
			if in.Program != "spl-token" || len(in.Parsed) == 0 {
				continue
			}
			var p parsedInstruction
			if err := json.Unmarshal(in.Parsed, &p); err != nil {
				continue
			}
			if p.Type != "transfer" && p.Type != "transferChecked" {
				continue
			}
			var info transferInfo
			if err := json.Unmarshal(p.Info, &info); err != nil {
				continue
			}
			t := TokenTransfer{
				Authority:   info.Authority,
				Source:      info.Source,
				Destination: info.Destination,
				Mint:        info.Mint,
				Amount:      info.Amount,
			}
			// transferChecked nests the amount under tokenAmount.
			if t.Amount == "" && info.TokenAmount != nil {
				t.Amount = info.TokenAmount.Amount
			}
			transfers = append(transfers, t)
		}
	}

	if tx.Message != nil {
		collect(tx.Message.Instructions)
	}
	if tx.Meta != nil {
		for _, inner := range tx.Meta.InnerInstructions {
			collect(inner.Instructions)
		}
	}

	return transfers
}

// TouchesMint reports whether any post-transaction token balance is for
// the given mint.
func (tx *ParsedTransaction) TouchesMint(mint string) bool {
	if tx.Meta == nil {
		return false
	}
	for _, b := range tx.Meta.PostTokenBalances {
		if b.Mint == mint {
			return true
		}
	}
	return false
}
