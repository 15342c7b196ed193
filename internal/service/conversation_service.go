package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/grit-challenge-api/internal/dto"
	"github.com/noah-isme/grit-challenge-api/internal/models"
	appErrors "github.com/noah-isme/grit-challenge-api/pkg/errors"
)

type conversationStore interface {
	FindByID(ctx context.Context, id string) (*models.Conversation, error)
	FindByEvidenceID(ctx context.Context, evidenceID string) (*models.Conversation, error)
	Create(ctx context.Context, conversation *models.Conversation) (bool, error)
	Relink(ctx context.Context, conversationID, evidenceID string) error
	ListForStudent(ctx context.Context, studentID, schoolID string, yearLevel int) ([]models.Conversation, error)
	ListForSchool(ctx context.Context, schoolID string) ([]models.Conversation, error)
	AppendMessage(ctx context.Context, message *models.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	LatestMessage(ctx context.Context, conversationID string, sender *models.SenderType) (*models.Message, error)
	MarkRead(ctx context.Context, conversationID string, reader models.SenderType) error
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// ConversationService relays review feedback, announcements and direct
// threads between leaders and families. Delivery is pull based.
type ConversationService struct {
	repo      conversationStore
	students  studentReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewConversationService constructs the relay.
func NewConversationService(repo conversationStore, students studentReader, validate *validator.Validate, logger *zap.Logger) *ConversationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationService{repo: repo, students: students, validator: validate, logger: logger}
}

// SubjectFor names the review thread of a submission.
func SubjectFor(evidence *models.EvidenceSubmission) string {
	if evidence.IsGritBit() {
		return "GRIT Bit: " + evidence.Title
	}
	return "Challenge: " + evidence.Title
}

// ReconstructSubmission renders a submission as a family message.
func ReconstructSubmission(evidence *models.EvidenceSubmission) string {
	var b strings.Builder
	b.WriteString(evidence.Title)
	b.WriteString("\n\n")
	b.WriteString(evidence.TextContent)
	if len(evidence.MediaURLs) > 0 {
		b.WriteString("\n\nMedia:")
		for _, url := range evidence.MediaURLs {
			b.WriteString("\n- ")
			b.WriteString(url)
		}
	}
	return b.String()
}

// GetOrCreateForEvidence returns the review thread of a submission, creating
// and seeding it on first use. A lost create race re-reads the winner.
func (s *ConversationService) GetOrCreateForEvidence(ctx context.Context, evidence *models.EvidenceSubmission) (*models.Conversation, error) {
	existing, err := s.repo.FindByEvidenceID(ctx, evidence.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to load conversation")
	}

	student, err := s.students.FindByID(ctx, evidence.StudentID)
	if err != nil {
		return nil, s.studentError(err)
	}
	studentID, evidenceID := evidence.StudentID, evidence.ID
	conversation := &models.Conversation{
		SchoolID:             student.SchoolID,
		StudentID:            &studentID,
		Subject:              SubjectFor(evidence),
		ConversationType:     models.ConversationEvidenceReview,
		EvidenceSubmissionID: &evidenceID,
	}
	created, err := s.repo.Create(ctx, conversation)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to create conversation")
	}
	if !created {
		winner, err := s.repo.FindByEvidenceID(ctx, evidence.ID)
		if err != nil {
			return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to load conversation")
		}
		return winner, nil
	}
	if _, err := s.Append(ctx, conversation.ID, models.SenderFamily, evidence.StudentID, ReconstructSubmission(evidence)); err != nil {
		return nil, err
	}
	return conversation, nil
}

// Append adds a message to a thread. Read state is left to MarkRead.
func (s *ConversationService) Append(ctx context.Context, conversationID string, sender models.SenderType, senderID, content string) (*models.Message, error) {
	message := &models.Message{
		ConversationID: conversationID,
		SenderType:     sender,
		SenderID:       senderID,
		Content:        content,
	}
	if err := s.repo.AppendMessage(ctx, message); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to append message")
	}
	return message, nil
}

// AppendOnce appends unless the newest message already carries the same
// sender and content, which makes retried review decisions safe.
func (s *ConversationService) AppendOnce(ctx context.Context, conversationID string, sender models.SenderType, senderID, content string) (*models.Message, bool, error) {
	latest, err := s.repo.LatestMessage(ctx, conversationID, nil)
	switch {
	case err == nil:
		if latest.SenderType == sender && latest.Content == content {
			return latest, false, nil
		}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to load latest message")
	}
	message, err := s.Append(ctx, conversationID, sender, senderID, content)
	if err != nil {
		return nil, false, err
	}
	return message, true, nil
}

// LatestFeedback returns the newest leader message on a submission's thread.
// An empty string means no feedback exists.
func (s *ConversationService) LatestFeedback(ctx context.Context, evidenceID string) (string, error) {
	conversation, err := s.repo.FindByEvidenceID(ctx, evidenceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to load conversation")
	}
	leader := models.SenderLeader
	message, err := s.repo.LatestMessage(ctx, conversation.ID, &leader)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to load feedback")
	}
	return message.Content, nil
}

// ContinueThread carries a resubmission into the prior submission's thread:
// it appends the reconstructed submission and relinks the thread to it.
func (s *ConversationService) ContinueThread(ctx context.Context, prior, next *models.EvidenceSubmission) (*models.Conversation, error) {
	conversation, err := s.GetOrCreateForEvidence(ctx, prior)
	if err != nil {
		return nil, err
	}
	if _, err := s.Append(ctx, conversation.ID, models.SenderFamily, next.StudentID, ReconstructSubmission(next)); err != nil {
		return nil, err
	}
	if err := s.repo.Relink(ctx, conversation.ID, next.ID); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to relink conversation")
	}
	nextID := next.ID
	conversation.EvidenceSubmissionID = &nextID
	return conversation, nil
}

// Announce creates a broadcast for the leader's school, optionally narrowed to a year level.
func (s *ConversationService) Announce(ctx context.Context, actor *models.JWTClaims, req dto.AnnouncementRequest) (*dto.ConversationThread, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}
	conversation := &models.Conversation{
		SchoolID:         actor.SchoolID,
		YearLevel:        req.YearLevel,
		Subject:          strings.TrimSpace(req.Subject),
		ConversationType: models.ConversationAnnouncement,
	}
	return s.open(ctx, conversation, actor.UserID, req.Content)
}

// StartDirect opens a general thread between a leader and one student's family.
func (s *ConversationService) StartDirect(ctx context.Context, actor *models.JWTClaims, req dto.DirectMessageRequest) (*dto.ConversationThread, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid direct message payload")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, s.studentError(err)
	}
	if student.SchoolID != actor.SchoolID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student belongs to another school")
	}
	studentID := student.ID
	conversation := &models.Conversation{
		SchoolID:         student.SchoolID,
		StudentID:        &studentID,
		Subject:          strings.TrimSpace(req.Subject),
		ConversationType: models.ConversationGeneral,
	}
	return s.open(ctx, conversation, actor.UserID, req.Content)
}

func (s *ConversationService) open(ctx context.Context, conversation *models.Conversation, leaderID, content string) (*dto.ConversationThread, error) {
	if _, err := s.repo.Create(ctx, conversation); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to create conversation")
	}
	message, err := s.Append(ctx, conversation.ID, models.SenderLeader, leaderID, strings.TrimSpace(content))
	if err != nil {
		return nil, err
	}
	conversation.LastMessageAt = message.CreatedAt
	return &dto.ConversationThread{Conversation: *conversation, Messages: []models.Message{*message}}, nil
}

// List returns the threads visible to the actor.
func (s *ConversationService) List(ctx context.Context, actor *models.JWTClaims) ([]models.Conversation, error) {
	var (
		items []models.Conversation
		err   error
	)
	switch actor.Role {
	case models.RoleLeader:
		items, err = s.repo.ListForSchool(ctx, actor.SchoolID)
	case models.RoleFamily:
		student, findErr := s.students.FindByID(ctx, actor.StudentID)
		if findErr != nil {
			return nil, s.studentError(findErr)
		}
		items, err = s.repo.ListForStudent(ctx, student.ID, student.SchoolID, student.YearLevel)
	default:
		return nil, appErrors.ErrForbidden
	}
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to list conversations")
	}
	return items, nil
}

// Thread returns a conversation with its messages.
func (s *ConversationService) Thread(ctx context.Context, actor *models.JWTClaims, conversationID string) (*dto.ConversationThread, error) {
	conversation, err := s.authorize(ctx, actor, conversationID)
	if err != nil {
		return nil, err
	}
	messages, err := s.repo.ListMessages(ctx, conversation.ID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to list messages")
	}
	return &dto.ConversationThread{Conversation: *conversation, Messages: messages}, nil
}

// Reply appends the actor's message. Families cannot reply to broadcasts.
func (s *ConversationService) Reply(ctx context.Context, actor *models.JWTClaims, conversationID string, req dto.SendMessageRequest) (*models.Message, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "message content is required")
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "message content is required")
	}
	conversation, err := s.authorize(ctx, actor, conversationID)
	if err != nil {
		return nil, err
	}
	sender := models.SenderLeader
	if actor.Role == models.RoleFamily {
		if conversation.StudentID == nil {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "announcements are read only")
		}
		sender = models.SenderFamily
	}
	return s.Append(ctx, conversation.ID, sender, actor.UserID, strings.TrimSpace(req.Content))
}

// MarkRead flags the thread and the other party's messages as read.
// Broadcast read state is shared, so families leave it untouched.
func (s *ConversationService) MarkRead(ctx context.Context, actor *models.JWTClaims, conversationID string) error {
	conversation, err := s.authorize(ctx, actor, conversationID)
	if err != nil {
		return err
	}
	reader := models.SenderLeader
	if actor.Role == models.RoleFamily {
		if conversation.StudentID == nil {
			return nil
		}
		reader = models.SenderFamily
	}
	if err := s.repo.MarkRead(ctx, conversation.ID, reader); err != nil {
		return appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to mark conversation read")
	}
	return nil
}

func (s *ConversationService) authorize(ctx context.Context, actor *models.JWTClaims, conversationID string) (*models.Conversation, error) {
	conversation, err := s.repo.FindByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "conversation not found")
		}
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to load conversation")
	}
	if conversation.SchoolID != actor.SchoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "conversation not found")
	}
	switch actor.Role {
	case models.RoleLeader:
		return conversation, nil
	case models.RoleFamily:
		if conversation.StudentID != nil {
			if *conversation.StudentID == actor.StudentID {
				return conversation, nil
			}
			return nil, appErrors.Clone(appErrors.ErrNotFound, "conversation not found")
		}
		if conversation.YearLevel == nil {
			return conversation, nil
		}
		student, err := s.students.FindByID(ctx, actor.StudentID)
		if err != nil {
			return nil, s.studentError(err)
		}
		if student.YearLevel == *conversation.YearLevel {
			return conversation, nil
		}
		return nil, appErrors.Clone(appErrors.ErrNotFound, "conversation not found")
	}
	return nil, appErrors.ErrForbidden
}

func (s *ConversationService) studentError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to load student")
}
