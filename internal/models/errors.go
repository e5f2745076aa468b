package models

import (
	"errors"
	"fmt"

	"github.com/glkeru/amperequest/internal/checked"
	"github.com/glkeru/amperequest/internal/identity"
)

// категории ошибок
var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrUnauthorized        = identity.ErrUnauthorized
	ErrInvalidState        = errors.New("invalid state")
	ErrOverflow            = checked.ErrOverflow
	ErrUnderflow           = checked.ErrUnderflow
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidInput        = errors.New("invalid input")
	ErrConflict            = errors.New("concurrent write conflict")
	ErrTransfer            = errors.New("value transfer failed")
)

// конкретные ошибки
var (
	ErrUnauthorizedCaller       = identity.ErrUnauthorizedCaller
	ErrUnauthorizedVoucher      = fmt.Errorf("voucher does not belong to the user: %w", ErrUnauthorized)
	ErrNotOwner                 = fmt.Errorf("caller is not the owner: %w", ErrUnauthorized)
	ErrInvalidVoucherProgram    = fmt.Errorf("voucher was not issued by the marketplace: %w", ErrInvalidInput)
	ErrInvalidVoucherData       = fmt.Errorf("invalid voucher data: %w", ErrInvalidInput)
	ErrSessionNotActive         = fmt.Errorf("session is not active: %w", ErrInvalidState)
	ErrListingNotActive         = fmt.Errorf("listing is not active: %w", ErrInvalidState)
	ErrVoucherAlreadyRedeemed   = fmt.Errorf("voucher already redeemed: %w", ErrInvalidState)
	ErrRedemptionMissing        = fmt.Errorf("voucher has no redemption record: %w", ErrInvalidState)
	ErrPlotNotOperational       = fmt.Errorf("plot is not operational: %w", ErrInvalidState)
	ErrNoChargerInstalled       = fmt.Errorf("no charger installed on this plot: %w", ErrInvalidState)
	ErrGameEngineNotInitialized = fmt.Errorf("game engine is not initialized: %w", ErrInvalidState)
	ErrInsufficientPoints       = fmt.Errorf("insufficient points: %w", ErrInsufficientBalance)
	ErrInsufficientRevenue      = fmt.Errorf("insufficient revenue to withdraw: %w", ErrInsufficientBalance)
	ErrInsufficientFunds        = fmt.Errorf("insufficient funds: %w", ErrInsufficientBalance)
	ErrInvalidChargerPower      = fmt.Errorf("invalid charger power, must be 3, 7, 11, 22 or 30 kW: %w", ErrInvalidInput)
	ErrInvalidUpgrade           = fmt.Errorf("new power must be greater than current: %w", ErrInvalidInput)
)
