package test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/suite"

	"github.com/projekt-software-engineering/ticket-backend/core/events"
)

type TicketFlowTestSuite struct {
	IntegrationTestSuite
}

func TestTicketFlowTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires docker")
	}
	suite.Run(t, &TicketFlowTestSuite{})
}

func (s *TicketFlowTestSuite) request(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	r := httptest.NewRequest(method, path, reader)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)
	return w
}

func (s *TicketFlowTestSuite) id(w *httptest.ResponseRecorder) string {
	var response map[string]string
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response))
	s.Require().NotEmpty(response["id"])
	return response["id"]
}

// TestTicketLifecycle walks the full flow through the persistent stack:
// course and ticket creation, a status change with history tracking, the
// referential delete guard, and the change notifications on Kafka.
func (s *TicketFlowTestSuite) TestTicketLifecycle() {
	w := s.request(http.MethodPost, "/data/course", "admin-token", map[string]interface{}{
		"course_abbreviation": "ISEF01",
		"name":                "Software Engineering",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	courseID := s.id(w)

	// exact duplicate is refused and references the existing course
	w = s.request(http.MethodPost, "/data/course", "admin-token", map[string]interface{}{
		"course_abbreviation": "ISEF01",
		"name":                "Software Engineering",
	})
	s.Require().Equal(http.StatusConflict, w.Code, w.Body.String())
	s.Require().Equal(courseID, s.id(w))

	ticketBody := map[string]interface{}{
		"title":       "assignment unclear",
		"description": "task 3 references a missing appendix",
		"course_id":   courseID,
		"status":      "open",
		"priority":    "low",
		"type":        "question",
		"assignee_id": "",
	}
	w = s.request(http.MethodPost, "/data/ticket", "requester-token", ticketBody)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	ticketID := s.id(w)

	// reading resolves the course reference
	w = s.request(http.MethodGet, "/data/ticket/"+ticketID, "requester-token", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var ticket map[string]interface{}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &ticket))
	s.Require().Equal("Software Engineering", ticket["course_name"])
	s.Require().Equal("ISEF01", ticket["course_abbreviation"])

	// the creator closes their ticket, which records a history entry
	ticketBody["status"] = "closed"
	w = s.request(http.MethodPut, "/data/ticket/"+ticketID, "requester-token", ticketBody)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.request(http.MethodGet, "/data/ticket_history?ticket_id="+ticketID, "admin-token", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var histories []map[string]interface{}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &histories))
	s.Require().Len(histories, 1)
	s.Require().Equal(map[string]interface{}{"status": "open"}, histories[0]["previous_values"])
	s.Require().Equal(map[string]interface{}{"status": "closed"}, histories[0]["changed_values"])

	// the referenced course cannot go away
	w = s.request(http.MethodDelete, "/data/course/"+courseID, "admin-token", nil)
	s.Require().Equal(http.StatusConflict, w.Code)
	s.Require().Equal("Course cannot be deleted! Tickets are refereing to them!", w.Body.String())

	// tickets never go away
	w = s.request(http.MethodDelete, "/data/ticket/"+ticketID, "admin-token", nil)
	s.Require().Equal(http.StatusMethodNotAllowed, w.Code)

	s.assertNotifications([]string{
		"course:create",
		"ticket:create",
		"ticket:update",
	})
}

// assertNotifications consumes the notification topic from the beginning
// and expects the given collection:operation pairs, in order. The history
// record is written by the backend itself, so it carries no notification.
func (s *TicketFlowTestSuite) assertNotifications(want []string) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{s.kafkaAddr},
		Topic:    NotificationTopic,
		MinBytes: 1,
		MaxBytes: 1e6,
	})
	defer reader.Close()

	got := []string{}
	for len(got) < len(want) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		message, err := reader.ReadMessage(ctx)
		cancel()
		s.Require().NoError(err, "missing notifications, got %v", got)

		var notification events.Notification
		s.Require().NoError(json.Unmarshal(message.Value, &notification))
		got = append(got, notification.Collection+":"+string(notification.Operation))
	}
	s.Require().Equal(want, got)
}
