package lookup

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"tg_weather_bot/internal/domain"
	"tg_weather_bot/internal/weather"
)

type stubFetcher struct {
	result weather.Result
	cities []string
}

func (s *stubFetcher) Fetch(_ context.Context, city string) weather.Result {
	s.cities = append(s.cities, city)
	res := s.result
	res.City = city
	return res
}

type memoryRecorder struct {
	lookups []domain.WeatherLookup
	err     error
}

func (m *memoryRecorder) Record(_ context.Context, lookup domain.WeatherLookup) (domain.WeatherLookup, error) {
	if m.err != nil {
		return domain.WeatherLookup{}, m.err
	}
	m.lookups = append(m.lookups, lookup)
	return lookup, nil
}

type sentMessage struct {
	chatID int64
	reply  domain.Reply
}

type memorySender struct {
	sent []sentMessage
	err  error
}

func (m *memorySender) SendText(_ context.Context, chatID int64, reply domain.Reply) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMessage{chatID: chatID, reply: reply})
	return nil
}

var sunny = weather.Report{City: "Kyiv", Country: "UA", Description: "ясно", Temperature: 20}

func TestDeliverRecordsAndSends(t *testing.T) {
	fetcher := &stubFetcher{result: weather.Result{Report: sunny}}
	recorder := &memoryRecorder{}
	sender := &memorySender{}
	svc := NewService(fetcher, recorder, sender, quietLogger())

	delivery, err := svc.Deliver(context.Background(), 10, 20, "Kyiv")
	if err != nil {
		t.Fatalf("Deliver returned error: %v", err)
	}
	if !delivery.Recorded || !delivery.Sent || !delivery.Result.OK() {
		t.Fatalf("unexpected delivery: %+v", delivery)
	}

	if len(recorder.lookups) != 1 {
		t.Fatalf("expected 1 recorded lookup, got %d", len(recorder.lookups))
	}
	got := recorder.lookups[0]
	if got.UserID != 10 || got.City != "Kyiv" || got.Failed || got.Summary != sunny.Format() {
		t.Fatalf("unexpected recorded lookup: %+v", got)
	}

	if len(sender.sent) != 1 || sender.sent[0].chatID != 20 || sender.sent[0].reply.Text != sunny.Format() {
		t.Fatalf("unexpected sent messages: %+v", sender.sent)
	}
}

func TestDeliverRecordsFailuresAsFailed(t *testing.T) {
	fetcher := &stubFetcher{result: weather.Result{Err: &weather.ProviderError{Code: "404", Message: "city not found"}}}
	recorder := &memoryRecorder{}
	sender := &memorySender{}
	svc := NewService(fetcher, recorder, sender, quietLogger())

	delivery, err := svc.Deliver(context.Background(), 1, 1, "Atlantis")
	if err != nil {
		t.Fatalf("Deliver returned error: %v", err)
	}
	if delivery.Result.OK() {
		t.Fatalf("expected failed result")
	}

	if !recorder.lookups[0].Failed || recorder.lookups[0].Summary != "Помилка: city not found" {
		t.Fatalf("expected failure to be recorded with its text, got %+v", recorder.lookups[0])
	}
	if sender.sent[0].reply.Text != "Помилка: city not found" {
		t.Fatalf("expected failure text to be sent, got %q", sender.sent[0].reply.Text)
	}
}

func TestDeliverSendsEvenWhenRecordFails(t *testing.T) {
	recordErr := errors.New("mongo unavailable")
	recorder := &memoryRecorder{err: recordErr}
	sender := &memorySender{}
	svc := NewService(&stubFetcher{result: weather.Result{Report: sunny}}, recorder, sender, quietLogger())

	delivery, err := svc.Deliver(context.Background(), 1, 1, "Kyiv")
	if !errors.Is(err, recordErr) {
		t.Fatalf("expected record error, got %v", err)
	}
	if delivery.Recorded || !delivery.Sent {
		t.Fatalf("expected send to proceed after record failure, got %+v", delivery)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected reply to be sent, got %d", len(sender.sent))
	}
}

func TestDeliverKeepsRecordWhenSendFails(t *testing.T) {
	sendErr := errors.New("chat not found")
	recorder := &memoryRecorder{}
	svc := NewService(&stubFetcher{result: weather.Result{Report: sunny}}, recorder, &memorySender{err: sendErr}, quietLogger())

	delivery, err := svc.Deliver(context.Background(), 1, 1, "Kyiv")
	if !errors.Is(err, sendErr) {
		t.Fatalf("expected send error, got %v", err)
	}
	if !delivery.Recorded || delivery.Sent {
		t.Fatalf("expected lookup to stay recorded, got %+v", delivery)
	}
	if len(recorder.lookups) != 1 {
		t.Fatalf("expected lookup to be recorded, got %d", len(recorder.lookups))
	}
}

func TestDeliverLogsRecordFailureOnInjectedLogger(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	svc := NewService(
		&stubFetcher{result: weather.Result{Report: sunny}},
		&memoryRecorder{err: errors.New("mongo unavailable")},
		&memorySender{},
		logrus.NewEntry(logger),
	)

	if _, err := svc.Deliver(context.Background(), 5, 6, "Kyiv"); err == nil {
		t.Fatalf("expected record error")
	}

	var found bool
	for _, entry := range hook.AllEntries() {
		if entry.Data["event"] == "lookup_record_error" {
			found = true
			if entry.Level != logrus.ErrorLevel || entry.Data["user_id"] != int64(5) || entry.Data["chat_id"] != int64(6) || entry.Data["city"] != "Kyiv" {
				t.Fatalf("unexpected record error entry: level=%s data=%v", entry.Level, entry.Data)
			}
		}
	}
	if !found {
		t.Fatalf("expected lookup_record_error on the injected logger")
	}
}

func TestSendDoesNotRecord(t *testing.T) {
	fetcher := &stubFetcher{result: weather.Result{Report: sunny}}
	recorder := &memoryRecorder{}
	sender := &memorySender{}
	svc := NewService(fetcher, recorder, sender, quietLogger())

	delivery, err := svc.Send(context.Background(), 30, "Kyiv")
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if !delivery.Sent || delivery.Recorded {
		t.Fatalf("unexpected delivery: %+v", delivery)
	}
	if len(recorder.lookups) != 0 {
		t.Fatalf("expected no history rows, got %d", len(recorder.lookups))
	}
	if len(sender.sent) != 1 || sender.sent[0].chatID != 30 || sender.sent[0].reply.Text != sunny.Format() {
		t.Fatalf("unexpected sent messages: %+v", sender.sent)
	}
}

func TestSendDeliversProviderFailureText(t *testing.T) {
	sender := &memorySender{}
	svc := NewService(&stubFetcher{result: weather.Result{Err: weather.ErrUnavailable}}, nil, sender, quietLogger())

	delivery, err := svc.Send(context.Background(), 1, "Kyiv")
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if delivery.Result.OK() || !delivery.Sent {
		t.Fatalf("expected failed result to be sent, got %+v", delivery)
	}
	if sender.sent[0].reply.Text != delivery.Result.Text() {
		t.Fatalf("expected failure text, got %q", sender.sent[0].reply.Text)
	}
}

func TestSendReturnsSendError(t *testing.T) {
	sendErr := errors.New("chat not found")
	svc := NewService(&stubFetcher{result: weather.Result{Report: sunny}}, nil, &memorySender{err: sendErr}, quietLogger())

	delivery, err := svc.Send(context.Background(), 1, "Kyiv")
	if !errors.Is(err, sendErr) || delivery.Sent {
		t.Fatalf("expected unsent delivery with send error, got %+v, %v", delivery, err)
	}
}

func TestDeliverRequiresDependencies(t *testing.T) {
	var svc *Service
	if _, err := svc.Deliver(context.Background(), 1, 1, "Kyiv"); err == nil {
		t.Fatalf("expected error for nil service")
	}
	if _, err := svc.Send(context.Background(), 1, "Kyiv"); err == nil {
		t.Fatalf("expected error for nil service")
	}
}

func quietLogger() *logrus.Entry {
	logger, _ := logtest.NewNullLogger()
	return logrus.NewEntry(logger)
}
