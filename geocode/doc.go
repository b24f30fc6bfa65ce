// Package geocode resolves free-text addresses to postal codes.
package geocode
