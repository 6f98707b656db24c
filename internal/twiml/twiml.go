// Package twiml renders the minimal TwiML subset the gateway replies with.
//
// Every webhook response, success or apology, is a single <Response> with
// one <Message> body. Twilio reads the reply off the HTTP response to the
// webhook POST, so no REST callback is involved.
package twiml

import (
	"encoding/xml"
	"strings"
)

// ContentType is the media type of a TwiML response body.
const ContentType = "text/xml; charset=utf-8"

type response struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// header is xml.Header without its trailing newline; the document goes out
// on a single line.
var header = strings.TrimSuffix(xml.Header, "\n")

// Message renders a TwiML document delivering body as a single outbound
// message. Reserved XML characters in body are escaped by the encoder.
func Message(body string) string {
	out, err := xml.Marshal(response{Message: body})
	if err != nil {
		// Marshalling a two-field struct cannot fail at runtime.
		return header + "<Response><Message></Message></Response>"
	}
	return header + string(out)
}

// Empty renders a TwiML document that acknowledges the delivery without
// sending a message back.
func Empty() string {
	return header + "<Response></Response>"
}
