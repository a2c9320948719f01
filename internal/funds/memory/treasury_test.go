package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"bxhive/internal/funds"
	id "bxhive/pkg/domain"
	"bxhive/pkg/platform/sentinel"
)

type TreasurySuite struct {
	suite.Suite
	treasury *Treasury
	ctx      context.Context
	alice    id.Address
	bob      id.Address
}

func (s *TreasurySuite) SetupTest() {
	s.treasury = NewTreasury()
	s.ctx = context.Background()
	s.alice = id.NewAddress()
	s.bob = id.NewAddress()
}

func TestTreasurySuite(t *testing.T) {
	suite.Run(t, new(TreasurySuite))
}

func (s *TreasurySuite) balance(addr id.Address) uint64 {
	bal, err := s.treasury.Balance(s.ctx, addr)
	s.Require().NoError(err)
	return bal
}

func (s *TreasurySuite) TestMintAndTransfer() {
	s.Require().NoError(s.treasury.Mint(s.ctx, s.alice, 1000))
	s.Require().NoError(s.treasury.Transfer(s.ctx, s.alice, s.bob, 400))

	s.Equal(uint64(600), s.balance(s.alice))
	s.Equal(uint64(400), s.balance(s.bob))
}

func (s *TreasurySuite) TestTransferInsufficientHasNoEffect() {
	s.Require().NoError(s.treasury.Mint(s.ctx, s.alice, 100))

	err := s.treasury.Transfer(s.ctx, s.alice, s.bob, 101)
	s.Require().ErrorIs(err, funds.ErrInsufficientFunds)
	s.Equal(uint64(100), s.balance(s.alice))
	s.Equal(uint64(0), s.balance(s.bob))
}

func (s *TreasurySuite) TestAuthorizeRedeemLifecycle() {
	s.Require().NoError(s.treasury.Mint(s.ctx, s.alice, 500))

	p, err := s.treasury.Authorize(s.ctx, s.alice, s.bob, 300)
	s.Require().NoError(err)
	// Debited immediately so the payment cannot be double-spent.
	s.Equal(uint64(200), s.balance(s.alice))
	s.Equal(uint64(0), s.balance(s.bob))

	redeemed, err := s.treasury.Redeem(s.ctx, p.ID, s.bob)
	s.Require().NoError(err)
	s.Equal(uint64(300), redeemed.Amount)
	s.Equal(uint64(300), s.balance(s.bob))

	s.Run("second redeem fails", func() {
		_, err := s.treasury.Redeem(s.ctx, p.ID, s.bob)
		s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
	})
}

func (s *TreasurySuite) TestRedeemVerifiesReceiver() {
	s.Require().NoError(s.treasury.Mint(s.ctx, s.alice, 500))
	p, err := s.treasury.Authorize(s.ctx, s.alice, s.bob, 300)
	s.Require().NoError(err)

	mallory := id.NewAddress()
	_, err = s.treasury.Redeem(s.ctx, p.ID, mallory)
	s.Require().ErrorIs(err, funds.ErrWrongReceiver)

	// Still redeemable by the rightful receiver.
	_, err = s.treasury.Redeem(s.ctx, p.ID, s.bob)
	s.Require().NoError(err)
}

func (s *TreasurySuite) TestRefundReturnsToPayer() {
	s.Require().NoError(s.treasury.Mint(s.ctx, s.alice, 500))
	p, err := s.treasury.Authorize(s.ctx, s.alice, s.bob, 300)
	s.Require().NoError(err)

	s.Require().NoError(s.treasury.Refund(s.ctx, p.ID))
	s.Equal(uint64(500), s.balance(s.alice))

	_, err = s.treasury.Redeem(s.ctx, p.ID, s.bob)
	s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
}

func (s *TreasurySuite) TestUnknownPayment() {
	_, err := s.treasury.Redeem(s.ctx, funds.NewPaymentID(), s.bob)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	s.Require().ErrorIs(s.treasury.Refund(s.ctx, funds.NewPaymentID()), sentinel.ErrNotFound)
}

func (s *TreasurySuite) TestZeroAmountsRejected() {
	s.Require().Error(s.treasury.Mint(s.ctx, s.alice, 0))
	s.Require().Error(s.treasury.Transfer(s.ctx, s.alice, s.bob, 0))
	_, err := s.treasury.Authorize(s.ctx, s.alice, s.bob, 0)
	s.Require().Error(err)
}
