// SPDX-FileCopyrightText: 2026 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Package catalogcache provides persistent backends for the discovery catalog cache.
//
// All backends store a versioned JSON snapshot of the last good catalog. They implement
// discovery.Cache and are best effort: read failures are reported as a cache miss and
// write failures are logged and counted, never returned to the scheduler.
package catalogcache
