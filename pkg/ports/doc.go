// Package ports declares the interfaces through which the engine reaches its
// collaborators: stores, the event bus, the model endpoint, the PDF renderer
// and the metrics collector. Adapters under pkg/adapters implement them.
package ports
