// Package chat answers parking questions, either from three guided selections or from a
// free-text message.
package chat

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"

	"toshima-parking-finder/internal/models"
)

// Selection is one chosen option
type Selection struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Selections holds the choices of the three steps
type Selections struct {
	Step1 *Selection `json:"step1,omitempty"`
	Step2 *Selection `json:"step2,omitempty"`
	Step3 *Selection `json:"step3,omitempty"`
}

// Request is the chat API request body
type Request struct {
	Message         string     `json:"message"`
	IsSelectionMode bool       `json:"isSelectionMode"`
	Selections      Selections `json:"selections"`
	Step            *int       `json:"step,omitempty"`
	SessionID       string     `json:"sessionId,omitempty"`
}

// Response is the chat API response body
type Response struct {
	Response    string               `json:"response,omitempty"`
	Type        string               `json:"type,omitempty"`
	ParkingLots []models.ParkingSpot `json:"parkingLots"`
	Suggestions []string             `json:"suggestions,omitempty"`
	Center      *models.Coordinates  `json:"center,omitempty"`
	SessionID   string               `json:"sessionId"`
	Error       string               `json:"error,omitempty"`
	Message     string               `json:"message,omitempty"`
}

// Response types
const (
	TypeSelectionResult = "selection_result"
	TypeGreeting        = "greeting"
	TypeNearest         = "nearest"
	TypeAvailable       = "available"
	TypeGeneral         = "general"
)

const (
	selectionScanLimit = 50
	finalStep          = 3
)

// SpotSource reads parking spots
type SpotSource interface {
	ScanSpots(ctx context.Context, limit int32) ([]models.ParkingSpot, error)
}

// Recommender writes a recommendation for a prompt
type Recommender interface {
	Recommend(ctx context.Context, prompt string) (string, error)
}

// Service answers chat requests
type Service struct {
	spots            SpotSource
	recommender      Recommender
	selectionEnabled bool
	newSessionID     func() string
}

// NewService creates a chat service. recommender may be nil, in which case selection
// results always use the canned message.
func NewService(spots SpotSource, recommender Recommender, selectionEnabled bool) *Service {
	return &Service{
		spots:            spots,
		recommender:      recommender,
		selectionEnabled: selectionEnabled,
		newSessionID:     uuid.NewString,
	}
}

// Handle answers one request and returns the HTTP status to send with it
func (s *Service) Handle(ctx context.Context, req Request) (int, Response) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = s.newSessionID()
	}

	var status int
	var resp Response
	if req.IsSelectionMode && s.selectionEnabled {
		status, resp = s.handleSelection(ctx, req)
	} else {
		status, resp = s.handleMessage(ctx, req)
	}

	if resp.ParkingLots == nil {
		resp.ParkingLots = []models.ParkingSpot{}
	}
	resp.SessionID = sessionID
	return status, resp
}

func (s *Service) handleSelection(ctx context.Context, req Request) (int, Response) {
	step := finalStep
	if req.Step != nil {
		step = *req.Step
	}
	if step < finalStep {
		return http.StatusOK, Response{Error: "まだ選択が完了していません"}
	}

	filters := BuildFilters(req.Selections)
	log.Printf("Selection filters: category=%s keywords=%v priority=%s area=%s",
		filters.Category, filters.Keywords, filters.Priority, filters.Area)

	spots, err := s.spots.ScanSpots(ctx, selectionScanLimit)
	if err != nil {
		log.Printf("Filtering error: %v", err)
		spots = nil
	}
	matched := filters.Apply(spots)

	var center *models.Coordinates
	if req.Selections.Step3 != nil {
		if c, ok := AreaCenter(req.Selections.Step3.ID); ok {
			center = &c
		}
	}

	if len(matched) == 0 {
		return http.StatusOK, Response{
			Response:    "条件に合う駐輪場が見つかりませんでした😅 条件を変更してみてください。",
			Suggestions: []string{"条件を変更", "別のエリア", "新しい検索"},
			Center:      center,
		}
	}

	resp := Response{
		Type:        TypeSelectionResult,
		ParkingLots: firstN(matched, maxShownSpots),
		Center:      center,
	}

	answer, err := s.recommend(ctx, CompactPrompt(req.Selections, matched))
	if err != nil {
		log.Printf("Recommendation error: %v", err)
		resp.Response = fmt.Sprintf("%d件の駐輪場が見つかりました！条件にぴったりの場所をご案内します🎯", len(matched))
		resp.Suggestions = []string{"別の条件", "詳細確認", "新しい検索"}
		return http.StatusOK, resp
	}

	resp.Response = answer
	resp.Suggestions = []string{"別の条件で探す", "詳細を確認", "新しい検索"}
	return http.StatusOK, resp
}

func (s *Service) recommend(ctx context.Context, prompt string) (string, error) {
	if s.recommender == nil {
		return "", fmt.Errorf("no recommender configured")
	}
	return s.recommender.Recommend(ctx, prompt)
}

func (s *Service) handleMessage(ctx context.Context, req Request) (int, Response) {
	if req.Message == "" {
		return http.StatusBadRequest, Response{Error: "メッセージが必要です"}
	}

	spots, err := s.spots.ScanSpots(ctx, 0)
	if err != nil {
		log.Printf("DynamoDB Error: %v", err)
		spots = nil
	}
	return http.StatusOK, FreeTextResponse(req.Message, spots)
}

// ErrorResponse is sent when a request cannot be processed at all
func ErrorResponse() Response {
	return Response{
		Error:       "エラーが発生しました",
		Message:     "しばらく時間をおいて再度お試しください",
		ParkingLots: []models.ParkingSpot{},
	}
}
