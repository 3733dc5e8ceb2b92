package app

import errorsmod "cosmossdk.io/errors"

const codespace = "app"

var (
	ErrTxDecode     = errorsmod.Register(codespace, 2, "tx decode error")
	ErrUnauthorized = errorsmod.Register(codespace, 3, "tx unauthorized")
	ErrReplay       = errorsmod.Register(codespace, 4, "tx replayed")
	ErrUnknownTx    = errorsmod.Register(codespace, 5, "unknown tx type")
	ErrMintDisabled = errorsmod.Register(codespace, 6, "minting disabled")
	ErrInvalidTx    = errorsmod.Register(codespace, 7, "invalid tx value")
	ErrQuery        = errorsmod.Register(codespace, 8, "query failed")
)
