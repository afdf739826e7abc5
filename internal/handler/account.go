package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/account"
)

func decodeAddress(d *jx.Decoder, a *account.Address) error {
	return decodeFields(d, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "street":
			a.Street, err = decodeString(d)
		case "city":
			a.City, err = decodeString(d)
		case "state":
			a.State, err = decodeString(d)
		case "postalCode":
			a.PostalCode, err = decodeString(d)
		case "isDefault":
			a.IsDefault, err = decodeBool(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

func decodeRegister(w http.ResponseWriter, r *http.Request) (account.RegisterRequest, string, error) {
	var (
		req  account.RegisterRequest
		code string
	)
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "username":
			req.Username, err = decodeString(d)
		case "email":
			req.Email, err = decodeString(d)
		case "password":
			req.Password, err = decodeString(d)
		case "adminCode":
			code, err = decodeString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return req, code, err
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	req, _, err := decodeRegister(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	s, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeSession(e, s) })
}

func (h *Handler) registerAdmin(w http.ResponseWriter, r *http.Request) {
	req, code, err := decodeRegister(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	s, err := h.accounts.RegisterAdmin(r.Context(), req, code)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeSession(e, s) })
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var email, password string
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			email, err = decodeString(d)
		case "password":
			password, err = decodeString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	if email == "" || password == "" {
		fail(w, r, badRequest("email and password are required"))
		return
	}
	s, err := h.accounts.Login(r.Context(), email, password)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSession(e, s) })
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	a, err := h.accounts.Get(r.Context(), principal(r).AccountID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeAccount(e, a) })
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var upd account.ProfileUpdate
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "username", "email":
			v, err := decodeString(d)
			if err != nil || v == "" {
				return err
			}
			if key == "username" {
				upd.Username = &v
			} else {
				upd.Email = &v
			}
			return nil
		case "addresses":
			addrs := []account.Address{}
			if err := decodeArray(d, func(d *jx.Decoder) error {
				var a account.Address
				if err := decodeAddress(d, &a); err != nil {
					return err
				}
				addrs = append(addrs, a)
				return nil
			}); err != nil {
				return err
			}
			upd.Addresses = &addrs
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	a, err := h.accounts.UpdateProfile(r.Context(), principal(r).AccountID, upd)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeAccount(e, a) })
}

func (h *Handler) addAddress(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var addr account.Address
	if err := decodeAddress(jx.DecodeBytes(body), &addr); err != nil {
		fail(w, r, badRequest("malformed address"))
		return
	}
	addrs, err := h.accounts.AddAddress(r.Context(), principal(r).AccountID, addr)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeAddresses(e, addrs) })
}
