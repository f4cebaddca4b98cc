package engine

import "github.com/rhuss/homebrain/pkg/api"

// defaultInstructions are the handler system prompts used when a route's
// capability does not set one.
var defaultInstructions = map[api.Route]string{
	api.RoutePersonal: "You answer questions about the owner's public and professional background: " +
		"career, skills, talks and publications. Stay factual and do not speculate about private life.",
	api.RouteProjects: "You answer questions about the owner's software projects: what they do, " +
		"how they are built, and how to use or contribute to them.",
	api.RouteHomelab: "You answer questions about the owner's homelab and infrastructure: hardware, " +
		"networking, Kubernetes, self-hosted services and automation. Use tools when they help.",
	api.RouteGeneral: "You are a helpful, concise assistant. Answer general questions directly.",
}

// refusalText is appended instead of dispatching when the router flags a
// message for human review.
const refusalText = "I can't help with private or sensitive personal information or risky real-world actions. " +
	"Ask about public or professional topics instead."

// resolveCapability returns the capability for route with the built-in
// instruction filled in when none is configured.
func (c Config) resolveCapability(route api.Route) Capability {
	capab := c.Capabilities[route]
	if capab.Instruction == "" {
		capab.Instruction = defaultInstructions[route]
	}
	return capab
}
