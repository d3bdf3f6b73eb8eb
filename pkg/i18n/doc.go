// Package i18n resolves locale fallback chains and interpolates translated
// templates.
//
// Chain builds the ordered list of languages to try for a recipient:
//
//	i18n.Chain("pt-BR", []string{"es"}, []string{"fr"})
//	// [pt-BR es pt fr en]
//
// Interpolate fills %{path} placeholders from a nested payload, following
// dotted paths, and escapes values for HTML bodies:
//
//	s, err := i18n.Interpolate("Order %{order.id}", payload, false)
//
// ParseFile reads JSON or YAML translation files keyed by language, event
// key and template type.
package i18n
