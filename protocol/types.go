// Package protocol defines the faucet program's wire contract: account layout,
// instruction payloads and address seeds.
package protocol

// SolanaPubkey is a raw 32-byte account address.
type SolanaPubkey [32]byte

// Lamports is an amount of SOL in its smallest unit.
type Lamports uint64
