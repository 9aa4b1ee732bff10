// Package browser provides enrich.Launcher implementations. The chromedp
// launcher drives a headless Chrome per session; the colly launcher serves
// sites that render their search results server side.
package browser
