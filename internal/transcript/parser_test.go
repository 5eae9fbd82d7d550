package transcript

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleMRT = `<?xml version="1.0" encoding="UTF-8"?>
<Meeting Session="Bmr001" DateTimeStamp="2000-02-16-1430">
  <Preamble>
    <Notes>Project planning meeting.</Notes>
    <Participants>
      <Participant Name="me011" Channel="c0"/>
      <Participant Name="fn002" Channel="c1"/>
    </Participants>
  </Preamble>
  <Transcript>
    <Segment StartTime="0.5" EndTime="3.2" Participant="me011">So we should get started.</Segment>
    <Segment StartTime="3.5" EndTime="5.0" Participant="fn002"><VocalSound Description="laugh"/> That sounds O_K to me.</Segment>
    <Segment StartTime="5.2" EndTime="9.9" Participant="me011" DigitTask="true">one two three four five</Segment>
    <Segment StartTime="10.0" EndTime="10.5" Participant="fn002"><VocalSound Description="breath"/></Segment>
  </Transcript>
</Meeting>`

func TestParseSampleMeeting(t *testing.T) {
	parser := NewParser()
	doc, err := parser.Parse(strings.NewReader(sampleMRT), "Bmr001", "Bmr001.mrt")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// 数字任务片段和纯噪音片段被排除
	if len(doc.Utterances) != 2 {
		t.Fatalf("Expected 2 utterances, got %d", len(doc.Utterances))
	}

	lines := strings.Split(doc.Text, "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 text lines, got %d", len(lines))
	}
	if lines[0] != "[me011]: So we should get started." {
		t.Errorf("Unexpected first line: %q", lines[0])
	}
	if lines[1] != "[fn002]: [laugh] That sounds OK to me." {
		t.Errorf("Unexpected second line: %q", lines[1])
	}

	md := doc.Metadata
	if md["meeting_id"] != "Bmr001" {
		t.Errorf("meeting_id = %v", md["meeting_id"])
	}
	if md["session"] != "Bmr001" {
		t.Errorf("session = %v", md["session"])
	}
	if md["source"] != "Bmr001.mrt" {
		t.Errorf("source = %v", md["source"])
	}
	if md["num_utterances"] != 2 {
		t.Errorf("num_utterances = %v", md["num_utterances"])
	}
	if md["num_speakers"] != 2 {
		t.Errorf("num_speakers = %v", md["num_speakers"])
	}
	speakers, ok := md["speakers"].([]string)
	if !ok || len(speakers) != 2 || speakers[0] != "fn002" || speakers[1] != "me011" {
		t.Errorf("speakers = %v, want sorted [fn002 me011]", md["speakers"])
	}
	if md["meeting_type"] != "mr" {
		t.Errorf("meeting_type = %v", md["meeting_type"])
	}
	if md["meeting_type_description"] != "Meeting Recorder weekly meeting" {
		t.Errorf("meeting_type_description = %v", md["meeting_type_description"])
	}
	if md["date_time"] != "2000-02-16-1430" {
		t.Errorf("date_time = %v", md["date_time"])
	}
	if md["notes"] != "Project planning meeting." {
		t.Errorf("notes = %v", md["notes"])
	}
	participants, ok := md["participants"].(map[string]string)
	if !ok || participants["me011"] != "c0" || participants["fn002"] != "c1" {
		t.Errorf("participants = %v", md["participants"])
	}
	if md["start_time"] != 0.5 {
		t.Errorf("start_time = %v, want 0.5", md["start_time"])
	}
	if md["end_time"] != 5.0 {
		t.Errorf("end_time = %v, want 5.0", md["end_time"])
	}
	if md["duration_seconds"] != 4.5 {
		t.Errorf("duration_seconds = %v, want 4.5", md["duration_seconds"])
	}
}

func TestParseMissingSpeakerAndTimes(t *testing.T) {
	content := `<Meeting Session="Btr010">
  <Transcript>
    <Segment>Anyone know who said this?</Segment>
  </Transcript>
</Meeting>`

	parser := NewParser()
	doc, err := parser.Parse(strings.NewReader(content), "Btr010", "Btr010.mrt")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	utt := doc.Utterances[0]
	if utt.Speaker != "Unknown" {
		t.Errorf("Speaker = %q, want Unknown", utt.Speaker)
	}
	if utt.StartTime != nil || utt.EndTime != nil {
		t.Errorf("Expected nil times, got %v/%v", utt.StartTime, utt.EndTime)
	}

	// 没有时间信息时不写入时间相关的元数据键
	for _, key := range []string{"start_time", "end_time", "duration_seconds"} {
		if _, exists := doc.Metadata[key]; exists {
			t.Errorf("Metadata key %s should be absent", key)
		}
	}
}

func TestParseNotesTruncated(t *testing.T) {
	longNotes := strings.Repeat("x", 600)
	content := `<Meeting Session="Bmr002">
  <Preamble><Notes>` + longNotes + `</Notes></Preamble>
  <Transcript>
    <Segment StartTime="1.0" EndTime="2.0" Participant="me011">Hello there everyone.</Segment>
  </Transcript>
</Meeting>`

	parser := NewParser(WithNotesMaxLength(500))
	doc, err := parser.Parse(strings.NewReader(content), "Bmr002", "Bmr002.mrt")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	notes, _ := doc.Metadata["notes"].(string)
	if len(notes) != 500 {
		t.Errorf("notes length = %d, want 500", len(notes))
	}
}

func TestParseNoTranscript(t *testing.T) {
	content := `<Meeting Session="Bmr003"><Preamble><Notes>empty</Notes></Preamble></Meeting>`

	parser := NewParser()
	_, err := parser.Parse(strings.NewReader(content), "Bmr003", "Bmr003.mrt")
	if !errors.Is(err, ErrNoTranscript) {
		t.Errorf("Expected ErrNoTranscript, got %v", err)
	}
}

func TestParseNoUtterances(t *testing.T) {
	content := `<Meeting Session="Bmr004">
  <Transcript>
    <Segment StartTime="1.0" EndTime="2.0" Participant="me011" DigitTask="true">one two three</Segment>
    <Segment StartTime="2.0" EndTime="3.0" Participant="fn002"><VocalSound Description="cough"/></Segment>
  </Transcript>
</Meeting>`

	parser := NewParser()
	_, err := parser.Parse(strings.NewReader(content), "Bmr004", "Bmr004.mrt")
	if !errors.Is(err, ErrNoUtterances) {
		t.Errorf("Expected ErrNoUtterances, got %v", err)
	}
}

func TestParseInvalidXML(t *testing.T) {
	parser := NewParser()
	_, err := parser.Parse(strings.NewReader("this is not xml at all"), "bad", "bad.mrt")
	if err == nil {
		t.Fatal("Expected error for invalid XML")
	}

	_, err = parser.Parse(strings.NewReader("<Meeting><Transcript><Segment>unclosed"), "bad", "bad.mrt")
	if err == nil {
		t.Fatal("Expected error for truncated XML")
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Bmr001.mrt")
	if err := os.WriteFile(path, []byte(sampleMRT), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	parser := NewParser()
	doc, err := parser.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if doc.MeetingID != "Bmr001" {
		t.Errorf("MeetingID = %q, want Bmr001", doc.MeetingID)
	}
	if doc.Metadata["source"] != path {
		t.Errorf("source = %v, want %s", doc.Metadata["source"], path)
	}

	if _, err := parser.ParseFile(filepath.Join(dir, "missing.mrt")); err == nil {
		t.Error("Expected error for missing file")
	}
}
