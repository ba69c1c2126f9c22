package worker

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"databender/config"
	"databender/utils"
)

// ReplyWorker polls the outreach mailbox over IMAP for unseen replies and
// stops the sequence for any lead who answered.
type ReplyWorker struct {
	processor *utils.SequenceProcessor
	leads     *utils.LeadService
	logger    *log.Logger
	imap      config.IMAPConfig
}

func NewReplyWorker(processor *utils.SequenceProcessor, leads *utils.LeadService, logger *log.Logger, imapCfg config.IMAPConfig) *ReplyWorker {
	return &ReplyWorker{
		processor: processor,
		leads:     leads,
		logger:    logger,
		imap:      imapCfg,
	}
}

func (rw *ReplyWorker) Start(ctx context.Context) {
	if !rw.imap.Enabled {
		rw.logger.Println("Reply worker disabled: no IMAP host configured")
		return
	}

	rw.logger.Println("Starting reply worker...")
	ticker := time.NewTicker(5 * time.Minute)

	for {
		select {
		case <-ticker.C:
			if err := rw.scanReplies(); err != nil {
				rw.logger.Printf("Reply scan failed: %v", err)
			}
		case <-ctx.Done():
			rw.logger.Println("Stopping reply worker...")
			ticker.Stop()
			return
		}
	}
}

// scanReplies fetches unseen messages and marks senders as replied. The
// peek fetch leaves \Seen unset, so messages reappear on later scans; the
// hasReplied guard keeps each lead from being processed twice.
func (rw *ReplyWorker) scanReplies() error {
	addr := fmt.Sprintf("%s:%d", rw.imap.Host, rw.imap.Port)
	imapClient, err := client.DialTLS(addr, &tls.Config{ServerName: rw.imap.Host})
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %v", err)
	}
	defer imapClient.Logout()

	if err := imapClient.Login(rw.imap.Username, rw.imap.Password); err != nil {
		return fmt.Errorf("failed to login: %v", err)
	}

	mailbox := rw.imap.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := imapClient.Select(mailbox, false); err != nil {
		return fmt.Errorf("failed to select mailbox: %v", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{"\\Seen"}
	ids, err := imapClient.Search(criteria)
	if err != nil {
		return fmt.Errorf("failed to search messages: %v", err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchItem("BODY.PEEK[]")}, messages)
	}()

	for msg := range messages {
		if msg.Envelope == nil {
			continue
		}
		snippet := replySnippet(msg)
		for _, from := range msg.Envelope.From {
			email := strings.ToLower(from.MailboxName + "@" + from.HostName)
			rw.markReplied(email, msg.Envelope.Subject, snippet)
		}
	}

	if err := <-done; err != nil {
		return fmt.Errorf("error during fetch: %v", err)
	}
	return nil
}

// replySnippet pulls the first plain-text part out of the raw message.
func replySnippet(msg *imap.Message) string {
	if msg.Body == nil {
		return ""
	}
	section := imap.BodySectionName{}
	literal, ok := msg.Body[&section]
	if !ok {
		return ""
	}

	mr, err := mail.CreateReader(literal)
	if err != nil {
		return ""
	}
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return ""
		}
		if h, ok := p.Header.(*mail.InlineHeader); ok {
			contentType, _, _ := h.ContentType()
			if !strings.Contains(contentType, "text/plain") {
				continue
			}
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return ""
			}
			text := strings.TrimSpace(string(b))
			if len(text) > 500 {
				text = text[:500]
			}
			return text
		}
	}
	return ""
}

func (rw *ReplyWorker) markReplied(email, subject, snippet string) {
	lead, err := rw.leads.GetLeadByEmail(email)
	if err != nil {
		// Most inbox mail is not from leads
		return
	}
	if lead.HasReplied {
		return
	}
	if err := rw.processor.MarkReplied(lead); err != nil {
		rw.logger.Printf("Failed to mark lead %d replied: %v", lead.ID, err)
		return
	}

	note := fmt.Sprintf("Reply received: %s", subject)
	if snippet != "" {
		note += "\n\n" + snippet
	}
	if _, err := rw.leads.AddNoteToLead(lead.ID, note, "system"); err != nil {
		rw.logger.Printf("Failed to record reply note for lead %d: %v", lead.ID, err)
	}
	rw.logger.Printf("Lead %d replied, sequence paused", lead.ID)
}
