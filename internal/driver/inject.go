package driver

import (
	"context"
	"fmt"
	"time"
)

// ABIVersion is bumped whenever the set of published entry points or
// their signatures change. VerifyABI refuses a resident script whose
// version does not match, forcing a re-injection instead of calling
// into a stale contract.
const ABIVersion = 3

// abiFunctions is the published entry-point set the out-of-process
// side depends on. A missing name after injection is DRIVER_MISSING.
var abiFunctions = []string{
	"preValidate",
	"authState",
	"login",
	"restoreTicket",
	"switchAccount",
	"scrapeAccounts",
	"exitPosition",
	"cancelOrder",
	"scrapePositions",
	"isLive",
}

// residentScript is the in-page driver installed into every session
// after authentication. It owns the DOM-side half of every operation:
// container-scoped selectors for the order ticket, native-setter
// writes with synthetic input/change events, acknowledgment and error
// banner scanning, and the error simulator used by induced-failure
// testing. The ticket selectors deliberately scope to .order-ticket so
// the market analyzer's own symbol input is never touched.
const residentScript = `
(function () {
  if (window.__driver && window.__driver.abiVersion === 3) { return; }

  var ticketRoot = function () { return document.querySelector('.order-ticket'); };
  var analyzerRoot = function () { return document.querySelector('.market-analyzer'); };
  var armedFaults = {};

  function setNativeValue(input, value) {
    var proto = Object.getPrototypeOf(input);
    var desc = Object.getOwnPropertyDescriptor(proto, 'value');
    if (desc && desc.set) { desc.set.call(input, value); } else { input.value = value; }
    input.dispatchEvent(new Event('input', { bubbles: true }));
    input.dispatchEvent(new Event('change', { bubbles: true }));
  }

  function q(root, sel) { return root ? root.querySelector(sel) : null; }

  window.__driver = {
    abiVersion: 3,

    isLive: function () {
      return !!ticketRoot() && document.readyState === 'complete';
    },

    authState: function () {
      if (document.querySelector('form.login-form')) { return 'login_form'; }
      if (document.querySelector('.account-chooser')) { return 'account_chooser'; }
      return 'authenticated';
    },

    login: function (identity, secret) {
      var form = document.querySelector('form.login-form');
      if (!form) { return false; }
      setNativeValue(q(form, 'input[name=username]'), identity);
      setNativeValue(q(form, 'input[name=password]'), secret);
      var btn = q(form, 'button[type=submit]');
      if (btn) { btn.click(); }
      return true;
    },

    preValidate: function (symbol, quantity) {
      if (armedFaults['insufficient_funds']) {
        return { ok: false, reason: 'Insufficient funds' };
      }
      var root = ticketRoot();
      if (!root) { return { ok: false, reason: '' }; }
      if (document.querySelector('.modal-backdrop')) { return { ok: false, reason: '' }; }
      var banner = root.querySelector('.banner-insufficient-funds');
      if (banner) { return { ok: false, reason: banner.textContent.trim() }; }
      var qty = q(root, 'input.qty');
      if (!qty || quantity <= 0) { return { ok: false, reason: '' }; }
      return { ok: true, reason: '' };
    },

    restoreTicket: function (symbol, quantity, tp, sl) {
      var root = ticketRoot();
      if (!root) { return false; }
      setNativeValue(q(root, 'input.symbol'), symbol);
      setNativeValue(q(root, 'input.qty'), String(quantity));
      if (tp > 0) { setNativeValue(q(root, 'input.tp-ticks'), String(tp)); }
      if (sl > 0) { setNativeValue(q(root, 'input.sl-ticks'), String(sl)); }
      return true;
    },

    ticket: {
      setSymbol: function (symbol) {
        setNativeValue(q(ticketRoot(), 'input.symbol'), symbol);
      },
      readSymbol: function () {
        var el = q(ticketRoot(), 'input.symbol');
        return el ? el.value : '';
      },
      readAnalyzerSymbol: function () {
        var el = q(analyzerRoot(), 'input.symbol');
        return el ? el.value : '';
      },
      openTypeDropdown: function () {
        var el = q(ticketRoot(), '.type-dropdown');
        if (!el) { return false; }
        el.click();
        return el.classList.contains('open');
      },
      pickType: function (name) {
        var opts = ticketRoot() ? ticketRoot().querySelectorAll('.type-dropdown .option') : [];
        for (var i = 0; i < opts.length; i++) {
          if (opts[i].dataset.type === name) { opts[i].click(); return true; }
        }
        return false;
      },
      setPrice: function (value) {
        setNativeValue(q(ticketRoot(), 'input.price'), value);
      },
      readPrice: function () {
        var el = q(ticketRoot(), 'input.price');
        return el ? el.value : '';
      },
      clickSubmit: function () {
        var btn = q(ticketRoot(), 'button.submit');
        if (!btn || btn.disabled) { return false; }
        btn.click();
        if (armedFaults['silent_submit']) { delete armedFaults['silent_submit']; window.__driver.__suppressAck = true; }
        return true;
      },
      scanErrorBanner: function () {
        if (armedFaults['market_closed']) { delete armedFaults['market_closed']; return 'Market is closed'; }
        var root = ticketRoot();
        if (!root) { return ''; }
        var banner = root.querySelector('.banner-error, .rejection-banner');
        return banner ? banner.textContent.trim() : '';
      },
      acknowledged: function () {
        if (window.__driver.__suppressAck) { window.__driver.__suppressAck = false; return false; }
        var root = ticketRoot();
        return !!(root && root.querySelector('.ack-toast, .order-confirm'));
      },
      lastFill: function () {
        var toast = ticketRoot() && ticketRoot().querySelector('.ack-toast');
        if (!toast) { return { px: 0, qty: 0 }; }
        return {
          px: parseFloat(toast.dataset.px || '0'),
          qty: parseFloat(toast.dataset.qty || '0')
        };
      }
    },

    switchAccount: function (label) {
      var dd = document.querySelector('.account-dropdown');
      if (!dd) { return ''; }
      dd.click();
      var items = dd.querySelectorAll('.item');
      for (var i = 0; i < items.length; i++) {
        if (items[i].textContent.trim() === label) {
          items[i].click();
          dd.classList.remove('open');
          break;
        }
      }
      var sel = dd.querySelector('.selected');
      return sel ? sel.textContent.trim() : '';
    },

    scrapeAccounts: function () {
      var rows = document.querySelectorAll('.account-table tbody tr');
      var out = [];
      for (var i = 0; i < rows.length; i++) {
        var cells = rows[i].querySelectorAll('td');
        out.push({
          label: cells[0] ? cells[0].textContent.trim() : '',
          equity: cells[1] ? parseFloat(cells[1].textContent.replace(/[^0-9.\-]/g, '')) : 0,
          balance: cells[2] ? parseFloat(cells[2].textContent.replace(/[^0-9.\-]/g, '')) : 0
        });
      }
      return out;
    },

    scrapePositions: function () {
      var rows = document.querySelectorAll('.positions-table tbody tr');
      var out = [];
      for (var i = 0; i < rows.length; i++) {
        var cells = rows[i].querySelectorAll('td');
        out.push({
          symbol: rows[i].dataset.symbol || (cells[0] ? cells[0].textContent.trim() : ''),
          qty: cells[1] ? parseFloat(cells[1].textContent.replace(/[^0-9.\-]/g, '')) : 0,
          avg_px: cells[2] ? parseFloat(cells[2].textContent.replace(/[^0-9.\-]/g, '')) : 0
        });
      }
      return out;
    },

    exitPosition: function (symbol, option) {
      var rows = document.querySelectorAll('.positions-table tbody tr');
      for (var i = 0; i < rows.length; i++) {
        if (rows[i].dataset.symbol === symbol) {
          var btn = rows[i].querySelector('button[data-exit=' + option + ']');
          if (!btn) { return false; }
          btn.click();
          var confirm = document.querySelector('.exit-dialog button.confirm');
          if (confirm) { confirm.click(); }
          return true;
        }
      }
      return false;
    },

    cancelOrder: function (fingerprint) {
      var row = document.querySelector('.orders-table tr[data-fp="' + fingerprint + '"]');
      if (!row) { return false; }
      var btn = row.querySelector('button.cancel');
      if (btn) { btn.click(); return true; }
      return false;
    },

    errorSim: {
      arm: function (fault) { armedFaults[fault] = true; return true; },
      clear: function () { armedFaults = {}; }
    },

    reinject: function () { return true; }
  };
})();
`

// Inject installs the resident script into the session's page. Safe to
// call repeatedly: the script no-ops if the current ABI version is
// already installed.
func Inject(ctx context.Context, bridge Bridge) error {
	injectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := bridge.Eval(injectCtx, residentScript, nil); err != nil {
		return fmt.Errorf("driver: inject resident script: %w", err)
	}
	return nil
}

// VerifyABI confirms every published entry point is present and the
// installed version matches this binary's expectation. A mismatch or
// missing name means the channel must not be used until re-injection.
func VerifyABI(ctx context.Context, bridge Bridge) error {
	verifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var version int
	if err := bridge.Eval(verifyCtx, `window.__driver ? window.__driver.abiVersion : 0`, &version); err != nil {
		return fmt.Errorf("driver: read abi version: %w", err)
	}
	if version != ABIVersion {
		return fmt.Errorf("driver: abi version %d installed, want %d", version, ABIVersion)
	}

	for _, name := range abiFunctions {
		var present bool
		expr := fmt.Sprintf(`typeof window.__driver[%q] === 'function'`, name)
		if err := bridge.Eval(verifyCtx, expr, &present); err != nil {
			return fmt.Errorf("driver: verify %s: %w", name, err)
		}
		if !present {
			return fmt.Errorf("driver: entry point %s missing after injection", name)
		}
	}
	return nil
}
