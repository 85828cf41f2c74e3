// Package browser manages the lifetimes of browser processes, browsing
// contexts and pages.
//
// # Architecture
//
// The package is built around two concepts:
//
//  1. Driver: the boundary to the browser-control capability (see pwdriver
//     for the Playwright implementation and browsertest for an in-memory fake)
//  2. Registry: the owner of every handle created through a Driver
//
// Handles form a tree. A browser owns its contexts and a context owns its
// pages:
//
//	browser_preview_1
//	└── context_preview_1
//	    └── page_preview_1
//
// Closing any node closes its descendants first and removes them from the
// registry in the same critical section, so the registry never holds a page
// whose browser is gone. Closing an unknown id succeeds silently.
//
// # Current Page
//
// The registry tracks a single current page: the most recently created one.
// Closing that page clears the pointer; closing other pages does not touch
// it. Callers that juggle several pages should address them by id through
// Page instead of relying on CurrentPage.
//
// # Example Usage
//
//	reg := browser.NewRegistry(driver)
//	defer reg.Shutdown()
//
//	if _, err := reg.LaunchBrowser("b1", browser.EngineChromium, browser.LaunchOptions{Headless: true}); err != nil {
//	    return err
//	}
//	if _, err := reg.CreateContext("b1", "c1", browser.ContextOptions{
//	    Viewport: &browser.Viewport{Width: 800, Height: 600},
//	}); err != nil {
//	    return err
//	}
//	page, err := reg.CreatePage("c1", "p1")
//	if err != nil {
//	    return err
//	}
//	err = page.Page.Goto("https://example.test", browser.NavigateOptions{})
package browser
