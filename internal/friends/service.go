// Package friends implements the friend request lifecycle and friendship queries.
package friends

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/database"
	"github.com/ammar1510/huddle/internal/live"
	"github.com/ammar1510/huddle/internal/logger"
	"github.com/ammar1510/huddle/internal/metrics"
	"github.com/ammar1510/huddle/internal/models"
)

// Store is the persistence the friend use cases need.
type Store interface {
	database.UserStore
	database.FriendshipStore
	database.FriendRequestStore
}

// Service runs the friend request state machine and the friendship queries.
// Every change is announced on the requests and friends topics of the users
// involved.
type Service struct {
	store Store
	hub   *live.Hub
	pub   live.Publisher
	log   *logger.Logger
	now   func() time.Time
}

// NewService wires the use cases. Changes are announced through pub, which
// defaults to hub when nil.
func NewService(store Store, hub *live.Hub, pub live.Publisher) *Service {
	if pub == nil {
		pub = hub
	}
	return &Service{
		store: store,
		hub:   hub,
		pub:   pub,
		log:   logger.New("friends"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func record(action string, err error) {
	result := "ok"
	if err != nil {
		result = string(apperr.CodeOf(err))
	}
	metrics.RecordFriendRequest(action, result)
}

// Send creates a pending request from senderID to receiverID. A pending
// request in the opposite direction is left alone.
func (s *Service) Send(ctx context.Context, senderID, receiverID uuid.UUID) (req *models.FriendRequest, err error) {
	defer func() { record("send", err) }()

	if senderID == receiverID {
		return nil, apperr.ErrSelfRequest.With("user_id", senderID.String())
	}
	if _, err := s.store.GetUserByID(ctx, receiverID); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, apperr.ErrUserNotFound.With("user_id", receiverID.String())
		}
		return nil, apperr.Backend("get_user", err)
	}

	friends, err := s.store.FriendshipExists(ctx, senderID, receiverID)
	if err != nil {
		return nil, apperr.Backend("friendship_exists", err)
	}
	if friends {
		return nil, apperr.ErrAlreadyFriends.
			With("sender_id", senderID.String()).
			With("receiver_id", receiverID.String())
	}

	req = &models.FriendRequest{
		ID:         models.NewID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.RequestPending,
		CreatedAt:  s.now(),
	}
	if err := s.store.CreateFriendRequest(ctx, req); err != nil {
		if errors.Is(err, database.ErrDuplicateRequest) {
			return nil, apperr.ErrDuplicateRequest.
				With("sender_id", senderID.String()).
				With("receiver_id", receiverID.String())
		}
		return nil, apperr.Backend("create_friend_request", err)
	}

	s.log.Debug("Friend request %s sent from %s to %s", req.ID, senderID, receiverID)
	s.pub.Publish(live.RequestsTopic(senderID), live.RequestsTopic(receiverID))
	return req, nil
}

// Accept moves the request to accepted and creates the friendship in one step.
// A pending request in the opposite direction is closed as accepted too.
func (s *Service) Accept(ctx context.Context, requestID, actingUserID uuid.UUID) (req *models.FriendRequest, err error) {
	defer func() { record("accept", err) }()

	current, err := s.authorize(ctx, requestID, actingUserID, true)
	if err != nil {
		return nil, err
	}

	now := s.now()
	friendship := &models.Friendship{
		ID:        models.NewID(),
		User1ID:   current.SenderID,
		User2ID:   current.ReceiverID,
		CreatedAt: now,
	}
	req, err = s.resolve(ctx, current, models.RequestAccepted, now, friendship)
	if err != nil {
		return nil, err
	}

	s.log.Info("Friend request %s accepted, %s and %s are now friends", req.ID, req.SenderID, req.ReceiverID)
	s.pub.Publish(
		live.RequestsTopic(req.SenderID), live.RequestsTopic(req.ReceiverID),
		live.FriendsTopic(req.SenderID), live.FriendsTopic(req.ReceiverID),
	)
	return req, nil
}

// Reject declines a pending request. Only its receiver may reject it, and no
// friendship is created.
func (s *Service) Reject(ctx context.Context, requestID, actingUserID uuid.UUID) (req *models.FriendRequest, err error) {
	defer func() { record("reject", err) }()

	current, err := s.authorize(ctx, requestID, actingUserID, true)
	if err != nil {
		return nil, err
	}
	req, err = s.resolve(ctx, current, models.RequestRejected, s.now(), nil)
	if err != nil {
		return nil, err
	}

	s.log.Debug("Friend request %s rejected", req.ID)
	s.pub.Publish(live.RequestsTopic(req.SenderID), live.RequestsTopic(req.ReceiverID))
	return req, nil
}

// Cancel withdraws a pending request. Only its sender may cancel it.
func (s *Service) Cancel(ctx context.Context, requestID, actingUserID uuid.UUID) (req *models.FriendRequest, err error) {
	defer func() { record("cancel", err) }()

	current, err := s.authorize(ctx, requestID, actingUserID, false)
	if err != nil {
		return nil, err
	}
	req, err = s.resolve(ctx, current, models.RequestCancelled, s.now(), nil)
	if err != nil {
		return nil, err
	}

	s.log.Debug("Friend request %s cancelled", req.ID)
	s.pub.Publish(live.RequestsTopic(req.SenderID), live.RequestsTopic(req.ReceiverID))
	return req, nil
}

// authorize loads the request and checks the acting user is its receiver
// (asReceiver) or its sender, and that it is still pending.
func (s *Service) authorize(ctx context.Context, requestID, actingUserID uuid.UUID, asReceiver bool) (*models.FriendRequest, error) {
	req, err := s.store.GetFriendRequest(ctx, requestID)
	if errors.Is(err, database.ErrRequestNotFound) {
		return nil, apperr.ErrRequestNotFound.With("request_id", requestID.String())
	}
	if err != nil {
		return nil, apperr.Backend("get_friend_request", err)
	}

	if asReceiver && req.ReceiverID != actingUserID {
		return nil, apperr.ErrNotReceiver.
			With("request_id", requestID.String()).
			With("user_id", actingUserID.String())
	}
	if !asReceiver && req.SenderID != actingUserID {
		return nil, apperr.ErrNotSender.
			With("request_id", requestID.String()).
			With("user_id", actingUserID.String())
	}
	if req.Status != models.RequestPending {
		return nil, apperr.ErrInvalidState.
			With("request_id", requestID.String()).
			With("status", string(req.Status))
	}
	return req, nil
}

func (s *Service) resolve(ctx context.Context, req *models.FriendRequest, status models.RequestStatus, at time.Time, friendship *models.Friendship) (*models.FriendRequest, error) {
	updated, err := s.store.ResolveFriendRequest(ctx, req.ID, status, at, friendship)
	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, database.ErrRequestNotFound):
		return nil, apperr.ErrRequestNotFound.With("request_id", req.ID.String())
	case errors.Is(err, database.ErrRequestNotPending):
		return nil, apperr.ErrInvalidState.With("request_id", req.ID.String())
	case errors.Is(err, database.ErrFriendshipExists):
		return nil, apperr.ErrAlreadyFriends.
			With("request_id", req.ID.String()).
			With("sender_id", req.SenderID.String()).
			With("receiver_id", req.ReceiverID.String())
	default:
		s.log.Error("Failed to resolve friend request %s: %v", req.ID, err)
		return nil, apperr.Backend("resolve_friend_request", err)
	}
}

// RemoveFriend deletes the friendship between userID and otherUserID.
// Request history is kept.
func (s *Service) RemoveFriend(ctx context.Context, userID, otherUserID uuid.UUID) error {
	err := s.store.DeleteFriendship(ctx, userID, otherUserID)
	if errors.Is(err, database.ErrFriendshipNotFound) {
		return apperr.ErrFriendshipNotFound.
			With("user_id", userID.String()).
			With("other_user_id", otherUserID.String())
	}
	if err != nil {
		return apperr.Backend("delete_friendship", err)
	}

	s.log.Info("Friendship between %s and %s removed", userID, otherUserID)
	s.pub.Publish(live.FriendsTopic(userID), live.FriendsTopic(otherUserID))
	return nil
}

// Status derives the relationship as seen by currentUserID. An existing
// friendship wins over any pending request left behind.
func (s *Service) Status(ctx context.Context, currentUserID, otherUserID uuid.UUID) (models.FriendshipStatus, error) {
	friends, err := s.store.FriendshipExists(ctx, currentUserID, otherUserID)
	if err != nil {
		return "", apperr.Backend("friendship_exists", err)
	}
	if friends {
		return models.StatusFriends, nil
	}

	sent, err := s.hasPending(ctx, currentUserID, otherUserID)
	if err != nil {
		return "", err
	}
	if sent {
		return models.StatusRequestSent, nil
	}

	received, err := s.hasPending(ctx, otherUserID, currentUserID)
	if err != nil {
		return "", err
	}
	if received {
		return models.StatusRequestReceived, nil
	}
	return models.StatusNotFriends, nil
}

func (s *Service) hasPending(ctx context.Context, senderID, receiverID uuid.UUID) (bool, error) {
	_, err := s.store.FindPendingRequest(ctx, senderID, receiverID)
	if errors.Is(err, database.ErrRequestNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Backend("find_pending_request", err)
	}
	return true, nil
}

// ListFriends joins each friendship with the other user's public profile.
// Friends whose profile no longer resolves are left out.
func (s *Service) ListFriends(ctx context.Context, userID uuid.UUID) ([]*models.Friend, error) {
	friendships, err := s.store.GetFriendshipsForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Backend("get_friendships", err)
	}

	joined := make([]*models.Friend, len(friendships))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, f := range friendships {
		i, f := i, f
		g.Go(func() error {
			u, err := s.store.GetUserByID(gctx, f.Other(userID))
			if errors.Is(err, database.ErrUserNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			joined[i] = &models.Friend{FriendshipID: f.ID, Since: f.CreatedAt, User: u.Public()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperr.Backend("get_user", err)
	}

	out := make([]*models.Friend, 0, len(joined))
	for _, f := range joined {
		if f != nil {
			out = append(out, f)
		}
	}
	return out, nil
}

// PendingRequests lists pending requests received by userID.
func (s *Service) PendingRequests(ctx context.Context, userID uuid.UUID) ([]*models.FriendRequest, error) {
	reqs, err := s.store.ListPendingReceived(ctx, userID)
	if err != nil {
		return nil, apperr.Backend("list_pending_received", err)
	}
	return reqs, nil
}

// SentRequests lists pending requests sent by userID.
func (s *Service) SentRequests(ctx context.Context, userID uuid.UUID) ([]*models.FriendRequest, error) {
	reqs, err := s.store.ListPendingSent(ctx, userID)
	if err != nil {
		return nil, apperr.Backend("list_pending_sent", err)
	}
	return reqs, nil
}

// ObservePending emits the received pending requests now and after every change.
func (s *Service) ObservePending(ctx context.Context, userID uuid.UUID) <-chan live.Snapshot[[]*models.FriendRequest] {
	return live.Watch(ctx, s.hub.Subscribe(live.RequestsTopic(userID)), func(ctx context.Context) ([]*models.FriendRequest, error) {
		return s.PendingRequests(ctx, userID)
	})
}

// ObserveSent emits the outgoing pending requests now and after every change.
func (s *Service) ObserveSent(ctx context.Context, userID uuid.UUID) <-chan live.Snapshot[[]*models.FriendRequest] {
	return live.Watch(ctx, s.hub.Subscribe(live.RequestsTopic(userID)), func(ctx context.Context) ([]*models.FriendRequest, error) {
		return s.SentRequests(ctx, userID)
	})
}

// ObserveFriends emits the friend list now and after every change.
func (s *Service) ObserveFriends(ctx context.Context, userID uuid.UUID) <-chan live.Snapshot[[]*models.Friend] {
	return live.Watch(ctx, s.hub.Subscribe(live.FriendsTopic(userID)), func(ctx context.Context) ([]*models.Friend, error) {
		return s.ListFriends(ctx, userID)
	})
}
