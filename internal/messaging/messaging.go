// Package messaging is the API client for the in-app message endpoints.
// Rendering is out of scope; this package only fetches contacts and
// history and sends messages, including the contact-resolution fallbacks
// the screens rely on.
package messaging

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"shuttletrack/internal/api"
	"shuttletrack/internal/identity"
)

// Contact is a user this account may message.
type Contact struct {
	UserID   api.ID `json:"userId"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
}

// Participant identifies one side of a message.
type Participant struct {
	UserID   api.ID `json:"userId"`
	Username string `json:"username"`
}

// Message is one entry of a conversation history.
type Message struct {
	Sender    Participant `json:"sender"`
	Receiver  Participant `json:"receiver"`
	Content   string      `json:"content"`
	Timestamp string      `json:"timestamp"`
}

// Client wraps the message endpoints.
type Client struct {
	api *api.Client
	log *zap.Logger
}

// NewClient creates a messaging client. A nil logger disables logging.
func NewClient(client *api.Client, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{api: client, log: log}
}

// Contacts lists the users this account may message.
func (c *Client) Contacts(ctx context.Context) ([]Contact, error) {
	var contacts []Contact
	if err := c.api.GetJSON(ctx, "/messages/contacts", &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// History fetches the conversation with another user.
func (c *Client) History(ctx context.Context, otherID string) ([]Message, error) {
	var history []Message
	if err := c.api.GetJSON(ctx, "/messages/history/"+otherID, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// Send delivers a message. Unlike the discovery chains, a send failure is
// surfaced: the user pressed the button and deserves to know.
func (c *Client) Send(ctx context.Context, receiverID, content string) error {
	body := map[string]string{
		"receiverId": receiverID,
		"content":    content,
	}
	return c.api.PostJSON(ctx, "/messages/send", body, nil)
}

// ContactByRole scans the contact list for the first contact whose role
// contains the given role value, any casing.
func (c *Client) ContactByRole(ctx context.Context, role identity.Role) (*Contact, error) {
	contacts, err := c.Contacts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range contacts {
		if strings.Contains(strings.ToUpper(contacts[i].Role), string(role)) {
			return &contacts[i], nil
		}
	}
	return nil, nil
}

// ParentContact finds the parent a student messages. The contact list is
// tried first; when it is missing or has no parent, the student profile's
// embedded parent object is the fallback.
func (c *Client) ParentContact(ctx context.Context, studentUserID string) (*Contact, error) {
	if contact, err := c.ContactByRole(ctx, identity.RoleParent); err == nil && contact != nil {
		return contact, nil
	} else if err != nil {
		c.log.Debug("contact list inconclusive", zap.Error(err))
	}

	var profile map[string]any
	if err := c.api.GetJSON(ctx, "/students/"+studentUserID, &profile); err != nil {
		c.log.Debug("student profile inconclusive", zap.Error(err))
		return nil, nil
	}
	parent, ok := profile["parent"].(map[string]any)
	if !ok {
		return nil, nil
	}

	contact := &Contact{Role: string(identity.RoleParent)}
	if user, ok := parent["user"].(map[string]any); ok {
		contact.UserID = api.ID(api.FormatID(user["userId"]))
		if name, ok := user["username"].(string); ok {
			contact.Username = name
		}
	} else {
		contact.UserID = api.ID(api.FormatID(parent["parentId"]))
	}
	if name, ok := parent["fullName"].(string); ok {
		contact.FullName = name
	}
	if contact.FullName == "" {
		contact.FullName = contact.Username
	}
	if contact.UserID == "" {
		return nil, nil
	}
	return contact, nil
}
