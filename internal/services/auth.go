package services

import (
	"context"
	"errors"
	"log"

	"devicegate/config"
	"devicegate/internal/kv"
	"devicegate/internal/models"
)

// AuthResult is the outcome of one authentication attempt.
type AuthResult struct {
	Status  int
	Message string
}

var (
	resultSuccess      = AuthResult{Status: 200, Message: "Authentication successful"}
	resultMismatch     = AuthResult{Status: 401, Message: "Device ID mismatch"}
	resultUserNotFound = AuthResult{Status: 403, Message: "User not found"}
	resultInternal     = AuthResult{Status: 500, Message: "Internal server error"}
)

// EventPublisher receives authentication outcomes for async fan-out.
// Publishing is best-effort and must never influence the result.
type EventPublisher interface {
	PublishAuthResult(userID, deviceID, message, timestamp, ip string, success bool)
}

// AuthService runs the device-binding state machine. A user record moves
// unbound -> bound on the first authentication; afterwards only the bound
// device is accepted. Every call writes exactly one auth log entry.
type AuthService struct {
	store     kv.Store
	logs      *LogService
	table     string
	publisher EventPublisher // nil when events are disabled
}

func NewAuthService(store kv.Store, logs *LogService, cfg *config.Config) *AuthService {
	return &AuthService{
		store: store,
		logs:  logs,
		table: cfg.UsersTable,
	}
}

// SetEventPublisher attaches an optional outcome publisher.
func (s *AuthService) SetEventPublisher(p EventPublisher) {
	s.publisher = p
}

// Authenticate resolves one attempt. The first bind is a conditioned write
// (deviceId still empty) so two simultaneous first-time binds cannot both
// win; the loser re-reads and is judged against the winning device.
func (s *AuthService) Authenticate(ctx context.Context, userID, deviceID, timestamp, ip string) AuthResult {
	user, err := s.userByID(ctx, userID)
	if errors.Is(err, kv.ErrNotFound) {
		return s.conclude(ctx, resultUserNotFound, models.AuthMsgUserNotFound, userID, deviceID, timestamp, ip, false)
	}
	if err != nil {
		log.Printf("Error in Authenticate for %s: %v", userID, err)
		return s.conclude(ctx, resultInternal, models.AuthMsgInternalError, userID, deviceID, timestamp, ip, false)
	}

	if !user.Bound() {
		err := s.store.Update(ctx, s.table,
			kv.Key{Partition: userID},
			kv.Item{models.AttrDeviceID: deviceID},
			&kv.UpdateCond{
				MustExist:   true,
				FieldEquals: kv.Item{models.AttrDeviceID: ""},
			},
		)
		switch {
		case err == nil:
			return s.conclude(ctx, resultSuccess, models.AuthMsgRegistered, userID, deviceID, timestamp, ip, true)
		case errors.Is(err, kv.ErrConditionFailed):
			// A concurrent attempt bound first; judge against its device.
			user, err = s.userByID(ctx, userID)
			if err != nil {
				log.Printf("Error in Authenticate for %s: %v", userID, err)
				return s.conclude(ctx, resultInternal, models.AuthMsgInternalError, userID, deviceID, timestamp, ip, false)
			}
		default:
			log.Printf("Error in Authenticate for %s: %v", userID, err)
			return s.conclude(ctx, resultInternal, models.AuthMsgInternalError, userID, deviceID, timestamp, ip, false)
		}
	}

	if user.DeviceID == deviceID {
		return s.conclude(ctx, resultSuccess, models.AuthMsgAuthenticated, userID, deviceID, timestamp, ip, true)
	}
	return s.conclude(ctx, resultMismatch, models.AuthMsgMismatch, userID, deviceID, timestamp, ip, false)
}

func (s *AuthService) userByID(ctx context.Context, userID string) (*models.User, error) {
	it, err := s.store.Get(ctx, s.table, kv.Key{Partition: userID})
	if err != nil {
		return nil, err
	}
	return models.UserFromItem(it), nil
}

// conclude records the single auth log entry for this attempt, publishes the
// outcome event, and returns the result.
func (s *AuthService) conclude(ctx context.Context, result AuthResult, logMessage, userID, deviceID, timestamp, ip string, success bool) AuthResult {
	// The audit append never changes the auth outcome. Failures are
	// logged inside RecordAuthAttempt.
	_ = s.logs.RecordAuthAttempt(ctx, &models.AuthLogEntry{
		UserID:    userID,
		Message:   logMessage,
		Timestamp: timestamp,
		DeviceID:  deviceID,
		Success:   success,
		IP:        ip,
	})

	if s.publisher != nil {
		s.publisher.PublishAuthResult(userID, deviceID, logMessage, timestamp, ip, success)
	}

	return result
}
