// Package i18n resolves user-facing message keys to localized strings.
// Catalogs are TOML files embedded at build time, one per language.
// Unknown or missing language codes fall back to the default language;
// fallback is part of the contract, never an error.
package i18n
