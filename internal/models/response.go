package models

import "github.com/gofiber/fiber/v2"

// EnvelopeVersion is bumped when the success response shape changes.
const EnvelopeVersion = 1

// Envelope is the single versioned shape every successful response uses.
// Payloads are never returned bare or wrapped ad hoc per call site.
type Envelope struct {
	V    int         `json:"v"`
	Data interface{} `json:"data"`
}

// Respond writes data inside the versioned envelope.
func Respond(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(Envelope{V: EnvelopeVersion, Data: data})
}
