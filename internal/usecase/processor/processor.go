package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmcarvalho/transferflow-backend/internal/domain"
	"github.com/dmcarvalho/transferflow-backend/internal/platform/logger"
)

// DedupCache is an optional fast path over committed event keys. It is a
// cache, not the source of truth: the authoritative duplicate check happens
// inside the unit of work against the record store, so a cold or failing
// cache can never cause a double apply.
type DedupCache interface {
	// Seen reports whether the event key was already marked as applied.
	Seen(ctx context.Context, eventKey string) (bool, error)

	// MarkApplied records the event key after a successful commit.
	MarkApplied(ctx context.Context, eventKey string) error
}

// Service is the transfer processor: it validates a transfer event against
// account balances, enriches it with the externally resolved incentive and
// applies the debit/credit pair plus the audit record as one atomic unit.
type Service struct {
	accounts   domain.AccountRepository
	uow        domain.UnitOfWork
	incentives domain.IncentiveResolver
	dedup      DedupCache // nil disables the fast path
	log        *logger.Logger
}

// NewService creates a new transfer processor.
func NewService(
	accounts domain.AccountRepository,
	uow domain.UnitOfWork,
	incentives domain.IncentiveResolver,
	dedup DedupCache,
	log *logger.Logger,
) *Service {
	return &Service{
		accounts:   accounts,
		uow:        uow,
		incentives: incentives,
		dedup:      dedup,
		log:        log,
	}
}

// Process handles one transfer event.
//
// Rejections (missing account, insufficient balance) and duplicates are
// outcomes, not errors: the event is consumed with no side effect and the
// caller can observe the drop. An error return means the unit of work was
// aborted with no side effect and the event is eligible for redelivery,
// except for ErrInvalidRequest which is terminal for the message.
//
// The incentive is resolved before the unit of work opens so the external
// call's latency is never held inside the critical section; existence and
// balance are re-validated under the account locks before applying.
func (s *Service) Process(ctx context.Context, req domain.TransferRequest) (domain.Outcome, error) {
	if err := req.Validate(); err != nil {
		return domain.Outcome{}, err
	}

	eventKey := req.EventKey()

	if seen := s.seenBefore(ctx, eventKey); seen {
		return domain.Duplicate(), nil
	}

	// Pre-checks outside the transaction. These make the common rejection
	// paths cheap and keep hopeless events away from the incentive service;
	// the transaction repeats them under locks before applying.
	if outcome, err := s.precheck(ctx, req); err != nil || outcome != nil {
		if err != nil {
			return domain.Outcome{}, err
		}

		return *outcome, nil
	}

	incentive, err := s.incentives.Resolve(ctx, req)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("resolve incentive for event %s: %w", eventKey, err)
	}

	if incentive.Amount.IsNegative() {
		return domain.Outcome{}, domain.NewIncentiveError(
			domain.IncentiveBadResponse,
			fmt.Errorf("negative incentive %s", incentive.Amount),
		)
	}

	outcome, err := s.apply(ctx, req, eventKey, incentive)
	if err != nil {
		return domain.Outcome{}, err
	}

	if outcome.Status == domain.OutcomeApplied {
		s.markApplied(ctx, eventKey)
	}

	return outcome, nil
}

// precheck loads both accounts and validates the sender balance outside the
// transaction. Returns a rejection outcome, an error, or (nil, nil) when the
// event may proceed.
func (s *Service) precheck(ctx context.Context, req domain.TransferRequest) (*domain.Outcome, error) {
	sender, err := s.accounts.GetByID(ctx, req.SenderID)
	if errors.Is(err, domain.ErrAccountNotFound) {
		rejected := domain.Rejected(domain.ReasonAccountNotFound)
		return &rejected, nil
	}

	if err != nil {
		return nil, fmt.Errorf("load sender %d: %w", req.SenderID, err)
	}

	if _, err := s.accounts.GetByID(ctx, req.RecipientID); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			rejected := domain.Rejected(domain.ReasonAccountNotFound)
			return &rejected, nil
		}

		return nil, fmt.Errorf("load recipient %d: %w", req.RecipientID, err)
	}

	if !sender.CanCover(req.Amount) {
		rejected := domain.Rejected(domain.ReasonInsufficientBalance)
		return &rejected, nil
	}

	return nil, nil
}

// apply runs the atomic part: lock both accounts, re-validate, mutate both
// balances and append the audit record, all in one unit of work.
func (s *Service) apply(
	ctx context.Context,
	req domain.TransferRequest,
	eventKey string,
	incentive domain.Incentive,
) (domain.Outcome, error) {
	var outcome domain.Outcome

	err := s.uow.Execute(ctx, func(ctx context.Context, stores domain.Stores) error {
		committed, err := stores.Records.ExistsByEventKey(ctx, eventKey)
		if err != nil {
			return fmt.Errorf("check event key: %w", err)
		}

		if committed {
			outcome = domain.Duplicate()
			return nil
		}

		sender, recipient, err := lockAccounts(ctx, stores.Accounts, req.SenderID, req.RecipientID)
		if errors.Is(err, domain.ErrAccountNotFound) {
			outcome = domain.Rejected(domain.ReasonAccountNotFound)
			return nil
		}

		if err != nil {
			return err
		}

		// The balance may have changed between the pre-check and here.
		if !sender.CanCover(req.Amount) {
			outcome = domain.Rejected(domain.ReasonInsufficientBalance)
			return nil
		}

		sender.Balance = sender.Balance.Sub(req.Amount)
		recipient.Balance = recipient.Balance.Add(req.Amount).Add(incentive.Amount)

		if err := stores.Accounts.Save(ctx, sender); err != nil {
			return fmt.Errorf("save sender %d: %w", sender.ID, err)
		}

		if err := stores.Accounts.Save(ctx, recipient); err != nil {
			return fmt.Errorf("save recipient %d: %w", recipient.ID, err)
		}

		record := domain.NewTransferRecord(req, incentive.Amount)
		if err := stores.Records.Append(ctx, record); err != nil {
			return fmt.Errorf("append transfer record: %w", err)
		}

		outcome = domain.Applied(record)

		return nil
	})

	// A concurrent delivery of the same event can win the race between our
	// event-key check and the append; its commit makes ours a duplicate.
	if errors.Is(err, domain.ErrDuplicateEventKey) {
		return domain.Duplicate(), nil
	}

	if err != nil {
		return domain.Outcome{}, fmt.Errorf("transfer unit of work: %w", err)
	}

	return outcome, nil
}

// lockAccounts loads sender and recipient in ascending id order so that
// concurrent opposite-direction transfers acquire row locks in the same
// order and cannot deadlock.
func lockAccounts(
	ctx context.Context,
	accounts domain.AccountRepository,
	senderID, recipientID int64,
) (sender, recipient *domain.Account, err error) {
	firstID, secondID := senderID, recipientID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}

	first, err := accounts.GetByID(ctx, firstID)
	if err != nil {
		return nil, nil, err
	}

	second, err := accounts.GetByID(ctx, secondID)
	if err != nil {
		return nil, nil, err
	}

	if first.ID == senderID {
		return first, second, nil
	}

	return second, first, nil
}

// seenBefore consults the dedup cache. Cache errors only disable the fast
// path; they are logged and the event continues into the transaction.
func (s *Service) seenBefore(ctx context.Context, eventKey string) bool {
	if s.dedup == nil {
		return false
	}

	seen, err := s.dedup.Seen(ctx, eventKey)
	if err != nil {
		s.log.Warnw("dedup cache lookup failed, falling through to store check",
			"event_key", eventKey, "error", err)
		return false
	}

	return seen
}

func (s *Service) markApplied(ctx context.Context, eventKey string) {
	if s.dedup == nil {
		return
	}

	if err := s.dedup.MarkApplied(ctx, eventKey); err != nil {
		s.log.Warnw("failed to mark event key in dedup cache",
			"event_key", eventKey, "error", err)
	}
}
