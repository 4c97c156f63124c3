// pubky-go is a self-sovereign identity and personal-storage platform.
// Copyright (C) 2024 The pubky-go Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package models

import (
	"context"
	"database/sql"
	"errors"

	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/ptime"
	"github.com/pubky-network/pubky-go/pubkey"
)

// ErrSignupCodeNotFound is returned when no row matches the requested code.
var ErrSignupCodeNotFound = errors.New("models: signup code not found")

// ErrSignupCodeAlreadyUsed is returned by Claim when the code exists but a
// prior signup already consumed it.
var ErrSignupCodeAlreadyUsed = errors.New("models: signup code already used")

// SignupCode gates account creation when HomeserverConfig.SignupMode is
// "token_required" (spec.md §4.10).
type SignupCode struct {
	Code      string
	UsedBy    *crypto.PublicKey
	CreatedAt ptime.Timestamp
}

var _ Model = &SignupCodes{}

// SignupCodes is the repository for the signup_codes table.
type SignupCodes struct {
	insert  *sql.Stmt
	claim   *sql.Stmt
	byCode  *sql.Stmt
}

func (c *SignupCodes) Prepare(db *sql.DB, d SqlDialect) error {
	return prepareStmtPairs(db, stmtPairs{
		{&c.insert, d.InsertSignupCode()},
		{&c.claim, d.ClaimSignupCode()},
		{&c.byCode, d.SignupCodeByCode()},
	})
}

func (c *SignupCodes) CreateTable(tx *sql.Tx, d SqlDialect) error {
	_, err := tx.Exec(d.CreateSignupCodesTable())
	return err
}

func (c *SignupCodes) Close() {
	for _, s := range []*sql.Stmt{c.insert, c.claim, c.byCode} {
		if s != nil {
			s.Close()
		}
	}
}

// Insert mints a new unused code.
func (c *SignupCodes) Insert(ctx context.Context, code string) (SignupCode, error) {
	now := ptime.Now()
	if _, err := c.insert.ExecContext(ctx, code, int64(now)); err != nil {
		return SignupCode{}, err
	}
	return SignupCode{Code: code, CreatedAt: now}, nil
}

// Claim atomically marks code as used by usedBy. The UPDATE's affected-row
// count doubles as the compare-and-swap: 1 row changed means this caller
// won the race and may proceed with signup; 0 means the code either does
// not exist or was already claimed.
func (c *SignupCodes) Claim(ctx context.Context, code string, usedBy crypto.PublicKey) error {
	res, err := c.claim.ExecContext(ctx, code, pubkey.Encode(usedBy))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	existing, err := c.ByCode(ctx, code)
	if err != nil {
		return err
	}
	if existing.UsedBy != nil {
		return ErrSignupCodeAlreadyUsed
	}
	return errors.New("models: signup code claim affected no rows for an unused code")
}

// ByCode fetches a code's current state, returning ErrSignupCodeNotFound
// if absent.
func (c *SignupCodes) ByCode(ctx context.Context, code string) (SignupCode, error) {
	var storedCode string
	var usedBy sql.NullString
	var createdAt int64
	row := c.byCode.QueryRowContext(ctx, code)
	if err := row.Scan(&storedCode, &usedBy, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SignupCode{}, ErrSignupCodeNotFound
		}
		return SignupCode{}, err
	}
	sc := SignupCode{Code: storedCode, CreatedAt: ptime.Timestamp(createdAt)}
	if usedBy.Valid {
		pk, err := pubkey.Parse(usedBy.String)
		if err != nil {
			return SignupCode{}, err
		}
		sc.UsedBy = &pk
	}
	return sc, nil
}
